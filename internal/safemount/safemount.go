// Package safemount guards a mount point so that it is unmounted exactly
// once on every exit path. Leaked mounts block subsequent runs against the
// same image files.

package safemount

import (
	"fmt"
	"os"

	"github.com/android-image-tools/nativebridge-installer/internal/logger"
	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

type Mount struct {
	source     string
	target     string
	fstype     string
	flags      uintptr
	data       string
	isMounted  bool
	dirCreated bool
}

// NewMount mounts the source onto the target and returns a guard for the
// mount. If makeAndDeleteDir is set, the target directory is created before
// mounting and removed again on close.
func NewMount(source, target, fstype string, flags uintptr, data string, makeAndDeleteDir bool) (*Mount, error) {
	mount := &Mount{
		source: source,
		target: target,
		fstype: fstype,
		flags:  flags,
		data:   data,
	}

	err := mount.initialize(makeAndDeleteDir)
	if err != nil {
		mount.Close()
		return nil, err
	}

	return mount, nil
}

func (m *Mount) initialize(makeAndDeleteDir bool) error {
	if makeAndDeleteDir {
		alreadyExists, err := dirExists(m.target)
		if err != nil {
			return err
		}

		if !alreadyExists {
			err := os.MkdirAll(m.target, 0o755)
			if err != nil {
				return fmt.Errorf("failed to create mount directory (%s):\n%w", m.target, err)
			}
			m.dirCreated = true
		}
	}

	logger.Log.Debugf("Mounting (%s) at (%s)", m.source, m.target)

	err := unix.Mount(m.source, m.target, m.fstype, m.flags, m.data)
	if err != nil {
		return fmt.Errorf("failed to mount (%s) at (%s):\n%w", m.source, m.target, err)
	}
	m.isMounted = true

	return nil
}

func (m *Mount) Target() string {
	return m.target
}

// Close unmounts and cleans up, logging instead of returning any error.
// Intended for use in defer statements.
func (m *Mount) Close() {
	err := m.close()
	if err != nil {
		logger.Log.Warnf("Failed to unmount (%s): %v", m.target, err)
	}
}

// CleanClose unmounts and cleans up, reporting failure to do so. An image
// must not be repackaged while its mount teardown has failed.
func (m *Mount) CleanClose() error {
	return m.close()
}

func (m *Mount) close() error {
	if m.isMounted {
		// The mount may have already been removed externally (e.g. a forced
		// recovery). Only call umount for mounts that are still live.
		stillMounted, err := mountinfo.Mounted(m.target)
		if err != nil {
			return fmt.Errorf("failed to query mount state of (%s):\n%w", m.target, err)
		}

		if stillMounted {
			err := unix.Unmount(m.target, 0)
			if err != nil {
				return fmt.Errorf("failed to unmount (%s):\n%w", m.target, err)
			}
		}
		m.isMounted = false
	}

	if m.dirCreated {
		err := os.Remove(m.target)
		if err != nil {
			return fmt.Errorf("failed to remove mount directory (%s):\n%w", m.target, err)
		}
		m.dirCreated = false
	}

	return nil
}

func dirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}
