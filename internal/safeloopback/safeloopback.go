// Package safeloopback guards a loopback device attachment so that it is
// detached exactly once on every exit path.

package safeloopback

import (
	"fmt"

	"github.com/android-image-tools/nativebridge-installer/internal/diskutils"
	"github.com/android-image-tools/nativebridge-installer/internal/logger"
)

type Loopback struct {
	devicePath   string
	diskFilePath string
	isAttached   bool
}

// NewLoopback attaches the disk file to a new loopback device.
func NewLoopback(diskFilePath string) (*Loopback, error) {
	devicePath, err := diskutils.SetupLoopbackDevice(diskFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to attach loopback device (%s):\n%w", diskFilePath, err)
	}

	loopback := &Loopback{
		devicePath:   devicePath,
		diskFilePath: diskFilePath,
		isAttached:   true,
	}
	return loopback, nil
}

func (l *Loopback) DevicePath() string {
	return l.devicePath
}

func (l *Loopback) DiskFilePath() string {
	return l.diskFilePath
}

// Close detaches the loopback device, logging instead of returning any
// error. Intended for use in defer statements.
func (l *Loopback) Close() {
	err := l.close()
	if err != nil {
		logger.Log.Warnf("Failed to detach loopback device (%s): %v", l.devicePath, err)
	}
}

// CleanClose detaches the loopback device and reports failure to do so.
func (l *Loopback) CleanClose() error {
	return l.close()
}

func (l *Loopback) close() error {
	if !l.isAttached {
		return nil
	}

	err := diskutils.DetachLoopbackDevice(l.devicePath)
	if err != nil {
		return err
	}

	l.isAttached = false
	return nil
}
