package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/term"

	"github.com/pifinski/PanikNippelboard/internal/crypto"
)

var Version = "dev"

var (
	keyDir      = flag.String("dir", ".", "Directory to write the key pair into")
	keyBits     = flag.Int("bits", crypto.DefaultKeyBits, "RSA modulus size in bits (minimum 2048)")
	usePassword = flag.Bool("password", false, "Protect the private key with a passphrase")
	force       = flag.Bool("force", false, "Overwrite an existing key pair")
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("nippelkeys v%s\n", Version)
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// The keyholder generates on their own machine; only the public half
	// ever travels to the recording device.
	for _, name := range []string{"private_key.pem", "public_key.pem"} {
		path := filepath.Join(*keyDir, name)
		if _, err := os.Stat(path); err == nil && !*force {
			return fmt.Errorf("%s already exists, pass --force to overwrite", path)
		}
	}

	var passphrase []byte
	if *usePassword {
		var err error
		passphrase, err = promptPassphrase()
		if err != nil {
			return err
		}
	}

	fmt.Printf("Generating %d-bit RSA key pair (this can take a while)...\n", *keyBits)
	key, err := crypto.GenerateKeyPair(*keyBits)
	if err != nil {
		return err
	}

	pubPath, privPath, err := crypto.SaveKeyPair(*keyDir, key, passphrase)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Public key:  %s\n", pubPath)
	fmt.Printf("Private key: %s\n", privPath)
	fmt.Println()
	fmt.Println("Copy the PUBLIC key to the recording device and keep the")
	fmt.Println("private key somewhere the device can never reach.")
	return nil
}

func promptPassphrase() ([]byte, error) {
	fmt.Fprint(os.Stderr, "Passphrase: ")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(first) == 0 {
		return nil, fmt.Errorf("empty passphrase")
	}

	fmt.Fprint(os.Stderr, "Repeat passphrase: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	if string(first) != string(second) {
		return nil, fmt.Errorf("passphrases do not match")
	}
	return first, nil
}
