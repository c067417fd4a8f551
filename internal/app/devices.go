package app

import (
	"fmt"
	"os"

	"github.com/pifinski/PanikNippelboard/internal/audio"
)

// ListDevices prints all available capture devices for --list-devices.
func ListDevices() error {
	devices, err := audio.ListDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list devices: %v\n", err)
		return err
	}

	if len(devices) == 0 {
		fmt.Println("No audio capture devices found.")
		return fmt.Errorf("no devices found")
	}

	fmt.Printf("Found %d capture device(s):\n\n", len(devices))
	for i, device := range devices {
		marker := ""
		if device.IsDefault {
			marker = " [DEFAULT]"
		}
		fmt.Printf("%d. %s%s\n", i+1, device.Name, marker)
		fmt.Printf("   ID: %s\n", device.ID)
	}

	fmt.Println()
	fmt.Println("To use a specific device, set audio.device in the config:")
	fmt.Printf("  audio:\n    device: \"%s\"\n", devices[0].Name)

	return nil
}
