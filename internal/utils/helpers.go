package utils

import (
	"fmt"
	"os"
)

// DefaultServerRoot returns $HOME/tftp, creating it if necessary. It is
// the fallback for TFTP_BASE_DIR when the operator does not set one.
func DefaultServerRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("getting user home dir: %w", err))
	}

	root := fmt.Sprintf("%s/tftp", home)

	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			panic(fmt.Errorf("checking server root: %w", err))
		}

		if err := os.Mkdir(root, 0o750); err != nil {
			panic(fmt.Errorf("creating server root: %w", err))
		}
	}

	return root
}
