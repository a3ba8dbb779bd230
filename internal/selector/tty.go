package selector

import (
	"fmt"
	"os"
)

// ttyPath is the controlling terminal on Unix systems.
const ttyPath = "/dev/tty"

// OpenTTY opens the controlling terminal for interactive reads, independent
// of any redirected stdin. The caller closes the returned file.
func OpenTTY() (*os.File, error) {
	f, err := os.OpenFile(ttyPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ttyPath, err)
	}
	return f, nil
}
