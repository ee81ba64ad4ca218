//go:build unix

package archive

import "golang.org/x/sys/unix"

// syncFS flushes filesystem buffers. Best effort.
func syncFS() {
	unix.Sync()
}
