// Removable storage volumes. A medium is mounted on demand and may disappear at any time;
// callers re-mount after failures.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

var ErrUnavailable = errors.New("storage medium unavailable")

type Medium interface {
	Mount() (fs afero.Fs, err error)
}

// Medium mounted by the OS at a directory (e.g. an SD card mount point)
type Dir struct {
	Path string
}

func (medium Dir) Mount() (fs afero.Fs, err error) {
	info, err := os.Stat(medium.Path)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		return
	}
	if !info.IsDir() {
		err = fmt.Errorf("%w: %s is not a directory", ErrUnavailable, medium.Path)
		return
	}

	// Card present but read-only or full shows up here rather than on first append
	probe, err := os.CreateTemp(medium.Path, ".probe-*")
	if err != nil {
		err = fmt.Errorf("%w: %s is not writable: %v", ErrUnavailable, medium.Path, err)
		return
	}
	probe.Close()
	os.Remove(filepath.Join(medium.Path, filepath.Base(probe.Name())))

	fs = afero.NewBasePathFs(afero.NewOsFs(), medium.Path)
	return
}

// In-memory medium that can be ejected and reinserted
type Memory struct {
	mu      sync.Mutex
	fs      afero.Fs
	ejected bool
}

func NewMemory() (medium *Memory) {
	medium = &Memory{fs: afero.NewMemMapFs()}
	return
}

func (medium *Memory) Mount() (fs afero.Fs, err error) {
	medium.mu.Lock()
	defer medium.mu.Unlock()

	if medium.ejected {
		err = fmt.Errorf("%w: medium ejected", ErrUnavailable)
		return
	}
	fs = medium.fs
	return
}

// Ejected media refuse to mount; contents are kept for reinsertion
func (medium *Memory) SetEjected(ejected bool) {
	medium.mu.Lock()
	defer medium.mu.Unlock()
	medium.ejected = ejected
}
