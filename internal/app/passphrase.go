package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// PassphraseEnv supplies the passphrase without a prompt, e.g. under `bk serve`.
const PassphraseEnv = "BK_PASSPHRASE"

// ErrNoTerminal is returned when a passphrase is needed but stdin is not a
// terminal and BK_PASSPHRASE is unset.
var ErrNoTerminal = errors.New("passphrase required: set " + PassphraseEnv + " or run from a terminal")

// PassphraseFunc yields the passphrase for the private key.
type PassphraseFunc func() (string, error)

// StaticPassphrase always returns pass.
func StaticPassphrase(pass string) PassphraseFunc {
	return func() (string, error) { return pass, nil }
}

// TerminalPassphrase reads BK_PASSPHRASE, falling back to an echo-free
// prompt on stdin. When confirm is set the passphrase is asked for twice.
func TerminalPassphrase(prompt io.Writer, confirm bool) PassphraseFunc {
	return func() (string, error) {
		if pass, ok := os.LookupEnv(PassphraseEnv); ok {
			return pass, nil
		}
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", ErrNoTerminal
		}
		read := func(label string) (string, error) {
			fmt.Fprint(prompt, label)
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(prompt)
			if err != nil {
				return "", err
			}
			return strings.TrimRight(string(b), "\r\n"), nil
		}
		pass, err := read("Passphrase: ")
		if err != nil {
			return "", err
		}
		if pass == "" {
			return "", errors.New("passphrase must not be empty")
		}
		if confirm {
			again, err := read("Confirm passphrase: ")
			if err != nil {
				return "", err
			}
			if again != pass {
				return "", errors.New("passphrases do not match")
			}
		}
		return pass, nil
	}
}
