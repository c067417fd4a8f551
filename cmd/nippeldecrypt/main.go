package main

import (
	"crypto/rsa"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/pifinski/PanikNippelboard/internal/crypto"
)

var Version = "dev"

var (
	privKeyPath = flag.String("key", "private_key.pem", "Path to the RSA private key")
	symmetric   = flag.Bool("symmetric", false, "Decrypt a passphrase-mode artifact instead of an RSA one")
	showVersion = flag.Bool("version", false, "Show version information")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <encrypted-file> [output-file] [private-key]\n\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(os.Stderr, "Decrypts a panic recording. The default output name strips the .enc suffix;")
	fmt.Fprintln(os.Stderr, "the private key may be given positionally or via -key.")
	fmt.Fprintln(os.Stderr, "Flags:")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("nippeldecrypt v%s\n", Version)
		os.Exit(0)
	}

	inPath, outPath, keyPath, err := parseArgs(flag.Args(), *privKeyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		usage()
		os.Exit(2)
	}
	*privKeyPath = keyPath

	if err := run(inPath, outPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseArgs resolves the positional forms: <in>, <in> <out> and
// <in> <out> <private-key>. A positional key overrides the -key flag.
func parseArgs(args []string, defaultKey string) (inPath, outPath, keyPath string, err error) {
	if len(args) < 1 || len(args) > 3 {
		return "", "", "", fmt.Errorf("expected 1 to 3 arguments, got %d", len(args))
	}

	inPath = args[0]
	outPath = strings.TrimSuffix(inPath, ".enc")
	keyPath = defaultKey
	if len(args) >= 2 {
		outPath = args[1]
	}
	if len(args) == 3 {
		keyPath = args[2]
	}

	if outPath == inPath {
		return "", "", "", fmt.Errorf("output path equals input path, pass an explicit output file")
	}
	return inPath, outPath, keyPath, nil
}

func run(inPath, outPath string) error {
	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer in.Close()

	var sr *crypto.StreamReader
	if *symmetric {
		passphrase, perr := promptPassphrase("Passphrase: ")
		if perr != nil {
			return perr
		}
		sr, err = crypto.NewSymmetricStreamReader(in, passphrase)
	} else {
		priv, kerr := loadPrivateKey(*privKeyPath)
		if kerr != nil {
			return kerr
		}
		sr, err = crypto.NewStreamReader(in, priv)
	}
	if err != nil {
		return err
	}

	// Decrypt into a temp file so an authentication failure never leaves
	// output that looks like recovered audio.
	tmp, err := os.CreateTemp(filepath.Dir(outPath), "."+filepath.Base(outPath)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	tmpName := tmp.Name()

	decErr := sr.Decrypt(tmp)
	if closeErr := tmp.Close(); closeErr != nil && decErr == nil {
		decErr = closeErr
	}

	switch {
	case decErr == nil:
		if err := os.Rename(tmpName, outPath); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("failed to move output into place: %w", err)
		}
		fmt.Printf("Decrypted to %s\n", outPath)
		return nil

	case errors.Is(decErr, crypto.ErrTruncated):
		// The recording was cut off, which is exactly what a panic
		// artifact looks like after a hard kill. Everything before the
		// cut verified, so it is worth keeping.
		if err := os.Rename(tmpName, outPath); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("failed to move output into place: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Warning: artifact is truncated; recovered the verified prefix to %s\n", outPath)
		os.Exit(3)
		return nil

	default:
		os.Remove(tmpName)
		return decErr
	}
}

func loadPrivateKey(path string) (priv *rsa.PrivateKey, err error) {
	priv, err = crypto.LoadPrivateKey(path, nil)
	if errors.Is(err, crypto.ErrPassphraseRequired) {
		var passphrase []byte
		passphrase, err = promptPassphrase("Private key passphrase: ")
		if err != nil {
			return nil, err
		}
		priv, err = crypto.LoadPrivateKey(path, passphrase)
	}
	return priv, err
}

func promptPassphrase(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return passphrase, nil
}
