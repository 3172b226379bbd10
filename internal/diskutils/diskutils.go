// Package diskutils manipulates raw disk image files and the loopback
// devices backing them.

package diskutils

import (
	"fmt"
	"os"
	"strings"

	"github.com/android-image-tools/nativebridge-installer/internal/logger"
	"github.com/android-image-tools/nativebridge-installer/internal/shell"
	"golang.org/x/sys/unix"
)

// Unit to byte conversion values
const (
	KiB = 1024
	MiB = 1024 * 1024
	GiB = 1024 * 1024 * 1024
)

// SectorSize is the fixed unit used for all size arithmetic. Sizes are
// converted to bytes only at the syscall boundary so that the apparent-size
// query, the allocation primitive, and resize2fs all agree on rounding.
const SectorSize = 512

// BytesToSectors converts bytes to 512-byte sectors, rounding up.
func BytesToSectors(sizeInBytes int64) int64 {
	return (sizeInBytes + SectorSize - 1) / SectorSize
}

// SectorsToBytes converts 512-byte sectors to bytes.
func SectorsToBytes(sizeInSectors int64) int64 {
	return sizeInSectors * SectorSize
}

// ApparentSize returns the logical length of the image file in bytes,
// irrespective of how many blocks are actually allocated.
func ApparentSize(imagePath string) (int64, error) {
	info, err := os.Stat(imagePath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat image (%s):\n%w", imagePath, err)
	}
	return info.Size(), nil
}

// AllocatedSize returns the number of bytes actually allocated on backing
// storage for the image file. For sparse files this is smaller than the
// apparent size.
func AllocatedSize(imagePath string) (int64, error) {
	stat := unix.Stat_t{}
	err := unix.Stat(imagePath, &stat)
	if err != nil {
		return 0, fmt.Errorf("failed to stat image (%s):\n%w", imagePath, err)
	}

	// st_blocks is always in 512-byte units.
	return stat.Blocks * SectorSize, nil
}

// Allocate extends the image file to the given length, allocating backing
// storage without zero-filling. Fails if the host filesystem cannot provide
// the space. Never shrinks the file.
func Allocate(imagePath string, sizeInBytes int64) error {
	currentSize, err := ApparentSize(imagePath)
	if err != nil {
		return err
	}
	if sizeInBytes <= currentSize {
		return nil
	}

	imageFile, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open image (%s):\n%w", imagePath, err)
	}
	defer imageFile.Close()

	err = unix.Fallocate(int(imageFile.Fd()), 0, 0, sizeInBytes)
	if err != nil {
		return fmt.Errorf("failed to allocate %d bytes for image (%s):\n%w", sizeInBytes, imagePath, err)
	}

	return nil
}

// Truncate sets the image file's apparent length without allocating storage.
func Truncate(imagePath string, sizeInBytes int64) error {
	err := os.Truncate(imagePath, sizeInBytes)
	if err != nil {
		return fmt.Errorf("failed to truncate image (%s) to %d bytes:\n%w", imagePath, sizeInBytes, err)
	}
	return nil
}

// FreeSpace returns the number of bytes available to unprivileged writers on
// the filesystem mounted at the given path.
func FreeSpace(mountPoint string) (int64, error) {
	statfs := unix.Statfs_t{}
	err := unix.Statfs(mountPoint, &statfs)
	if err != nil {
		return 0, fmt.Errorf("failed to statfs (%s):\n%w", mountPoint, err)
	}

	return int64(statfs.Bavail) * statfs.Bsize, nil
}

// UsedSpace returns the number of bytes in use on the filesystem mounted at
// the given path.
func UsedSpace(mountPoint string) (int64, error) {
	statfs := unix.Statfs_t{}
	err := unix.Statfs(mountPoint, &statfs)
	if err != nil {
		return 0, fmt.Errorf("failed to statfs (%s):\n%w", mountPoint, err)
	}

	return int64(statfs.Blocks-statfs.Bfree) * statfs.Bsize, nil
}

// SetupLoopbackDevice attaches a /dev/loop device to the given image file.
func SetupLoopbackDevice(imageFilePath string) (string, error) {
	logger.Log.Debugf("Attaching loopback: %s", imageFilePath)

	stdout, stderr, err := shell.Execute("losetup", "--show", "-f", imageFilePath)
	if err != nil {
		return "", fmt.Errorf("failed to create loopback device using losetup:\n%v\n%w", stderr, err)
	}

	devicePath := strings.TrimSpace(stdout)
	logger.Log.Debugf("Created loopback device at device path: %s", devicePath)
	return devicePath, nil
}

// DetachLoopbackDevice detaches the given /dev/loop device.
func DetachLoopbackDevice(devicePath string) error {
	logger.Log.Debugf("Detaching loopback: %s", devicePath)

	_, stderr, err := shell.Execute("losetup", "-d", devicePath)
	if err != nil {
		return fmt.Errorf("failed to detach loopback device (%s):\n%v\n%w", devicePath, stderr, err)
	}
	return nil
}

// BlockDeviceSize returns the size in bytes of a block device.
func BlockDeviceSize(devicePath string) (int64, error) {
	device, err := os.Open(devicePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open block device (%s):\n%w", devicePath, err)
	}
	defer device.Close()

	size, err := unix.IoctlGetInt(int(device.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, fmt.Errorf("failed to query block device size (%s):\n%w", devicePath, err)
	}
	return int64(size), nil
}
