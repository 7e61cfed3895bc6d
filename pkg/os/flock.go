package os

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Flock guards a single running client instance per user.
// Two clients sharing one credential store will fight over
// the active call slot, so the second instance should not start.
type Flock struct {
	f *flock.Flock
}

func NewFileLock(path string) (*Flock, error) {
	if path == "" {
		path = os.TempDir() + string(os.PathSeparator) + "vibgyor_rtc.lock"
	}

	if err := os.MkdirAll(filepath.Dir(path), 0770); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	_ = f.Close()

	return &Flock{f: flock.New(path)}, nil
}

// TryLock attempts to take the lock without blocking.
// It returns false when another client instance holds it.
func (f *Flock) TryLock() (bool, error) { return f.f.TryLock() }

func (f *Flock) Lock() error   { return f.f.Lock() }
func (f *Flock) Unlock() error { return f.f.Unlock() }
