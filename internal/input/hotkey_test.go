//go:build linux || darwin

package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.design/x/hotkey"
)

func TestParseCombo(t *testing.T) {
	mods, key, err := parseCombo("ctrl+shift+p")
	require.NoError(t, err)
	assert.ElementsMatch(t, []hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift}, mods)
	assert.Equal(t, hotkey.KeyP, key)

	mods, key, err = parseCombo("Alt + F5")
	require.NoError(t, err)
	assert.ElementsMatch(t, []hotkey.Modifier{modAlt()}, mods)
	assert.Equal(t, hotkey.KeyF5, key)

	_, key, err = parseCombo("space")
	require.NoError(t, err)
	assert.Equal(t, hotkey.KeySpace, key)
}

func TestParseComboErrors(t *testing.T) {
	cases := map[string]string{
		"":            "empty hotkey component",
		"ctrl+shift":  "no key specified",
		"ctrl+a+b":    "multiple keys specified",
		"ctrl+volume": "unknown key",
		"ctrl++p":     "empty hotkey component",
	}
	for combo, want := range cases {
		_, _, err := parseCombo(combo)
		assert.ErrorContains(t, err, want, "combo %q", combo)
	}
}
