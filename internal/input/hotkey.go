// Package input maps global hotkeys onto capture triggers. On deployments
// without GPIO buttons the hotkeys are the trigger surface, so they must
// work regardless of which window has focus.
package input

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.design/x/hotkey"
)

// Binding couples one hotkey combination with its trigger callback.
type Binding struct {
	Combo string
	Fire  func()
}

// Manager registers global hotkeys and dispatches their keydown events to
// the bound triggers.
type Manager struct {
	mu       sync.Mutex
	hks      []*hotkey.Hotkey
	cancel   context.CancelFunc
	done     chan struct{}
	pending  int
	started  bool
	bindings []Binding
}

// NewManager creates a Manager for the given bindings. Nothing is
// registered until Start.
func NewManager(bindings ...Binding) *Manager {
	return &Manager{
		bindings: bindings,
		done:     make(chan struct{}),
	}
}

// Start registers all bindings and begins dispatching events. Registration
// is all-or-nothing: a combination already claimed by another application
// fails the whole Start, and anything registered so far is released.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("hotkey manager already started")
	}

	for _, b := range m.bindings {
		mods, key, err := parseCombo(b.Combo)
		if err != nil {
			m.unregisterLocked()
			return fmt.Errorf("invalid hotkey %q: %w", b.Combo, err)
		}
		hk := hotkey.New(mods, key)
		if err := hk.Register(); err != nil {
			m.unregisterLocked()
			return fmt.Errorf("failed to register hotkey %q: %w", b.Combo, err)
		}
		m.hks = append(m.hks, hk)
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.pending = len(m.hks)
	m.started = true

	for i, hk := range m.hks {
		go m.listen(ctx, hk, m.bindings[i].Fire)
	}
	return nil
}

func (m *Manager) listen(ctx context.Context, hk *hotkey.Hotkey, fire func()) {
	defer func() {
		m.mu.Lock()
		m.pending--
		if m.pending == 0 {
			close(m.done)
		}
		m.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-hk.Keydown():
			if !ok {
				return
			}
			fire()
		}
	}
}

// Stop unregisters all hotkeys and waits briefly for the listeners.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.unregisterLocked()
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	select {
	case <-m.done:
	case <-time.After(100 * time.Millisecond):
	}
}

func (m *Manager) unregisterLocked() {
	for _, hk := range m.hks {
		hk.Unregister()
	}
	m.hks = nil
}

// parseCombo parses a combination like "ctrl+shift+p" into modifiers and a
// key.
func parseCombo(s string) ([]hotkey.Modifier, hotkey.Key, error) {
	var mods []hotkey.Modifier
	var key hotkey.Key
	var keyFound bool

	for _, part := range strings.Split(strings.ToLower(s), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			return nil, 0, fmt.Errorf("empty hotkey component")
		case "ctrl", "control":
			mods = append(mods, hotkey.ModCtrl)
		case "shift":
			mods = append(mods, hotkey.ModShift)
		case "alt":
			mods = append(mods, modAlt())
		case "cmd", "command", "super", "win":
			mods = append(mods, modSuper())
		default:
			if keyFound {
				return nil, 0, fmt.Errorf("multiple keys specified")
			}
			k, ok := keyNames[part]
			if !ok {
				return nil, 0, fmt.Errorf("unknown key %q", part)
			}
			key = k
			keyFound = true
		}
	}

	if !keyFound {
		return nil, 0, fmt.Errorf("no key specified")
	}
	return mods, key, nil
}

var keyNames = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"return": hotkey.KeyReturn,
	"enter":  hotkey.KeyReturn,
	"tab":    hotkey.KeyTab,
	"escape": hotkey.KeyEscape,
	"esc":    hotkey.KeyEscape,
	"a":      hotkey.KeyA,
	"b":      hotkey.KeyB,
	"c":      hotkey.KeyC,
	"d":      hotkey.KeyD,
	"e":      hotkey.KeyE,
	"f":      hotkey.KeyF,
	"g":      hotkey.KeyG,
	"h":      hotkey.KeyH,
	"i":      hotkey.KeyI,
	"j":      hotkey.KeyJ,
	"k":      hotkey.KeyK,
	"l":      hotkey.KeyL,
	"m":      hotkey.KeyM,
	"n":      hotkey.KeyN,
	"o":      hotkey.KeyO,
	"p":      hotkey.KeyP,
	"q":      hotkey.KeyQ,
	"r":      hotkey.KeyR,
	"s":      hotkey.KeyS,
	"t":      hotkey.KeyT,
	"u":      hotkey.KeyU,
	"v":      hotkey.KeyV,
	"w":      hotkey.KeyW,
	"x":      hotkey.KeyX,
	"y":      hotkey.KeyY,
	"z":      hotkey.KeyZ,
	"0":      hotkey.Key0,
	"1":      hotkey.Key1,
	"2":      hotkey.Key2,
	"3":      hotkey.Key3,
	"4":      hotkey.Key4,
	"5":      hotkey.Key5,
	"6":      hotkey.Key6,
	"7":      hotkey.Key7,
	"8":      hotkey.Key8,
	"9":      hotkey.Key9,
	"f1":     hotkey.KeyF1,
	"f2":     hotkey.KeyF2,
	"f3":     hotkey.KeyF3,
	"f4":     hotkey.KeyF4,
	"f5":     hotkey.KeyF5,
	"f6":     hotkey.KeyF6,
	"f7":     hotkey.KeyF7,
	"f8":     hotkey.KeyF8,
	"f9":     hotkey.KeyF9,
	"f10":    hotkey.KeyF10,
	"f11":    hotkey.KeyF11,
	"f12":    hotkey.KeyF12,
}
