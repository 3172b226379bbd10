package bridgeinstallerlib

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/android-image-tools/nativebridge-installer/internal/diskutils"
	"github.com/android-image-tools/nativebridge-installer/internal/file"
	"github.com/android-image-tools/nativebridge-installer/internal/logger"
	"github.com/android-image-tools/nativebridge-installer/internal/safeloopback"
	"github.com/android-image-tools/nativebridge-installer/internal/safemount"
)

// Top-level directories expected in a mounted partition. Used to resolve
// whether the partition's content sits directly at the mount point or nested
// under a partition-named subdirectory.
var expectedLayoutDirs = []string{"bin", "etc", "lib"}

// MountedImages binds the system and vendor images to loopback mounts. The
// vendor image is mounted nested inside the system tree so installed paths
// see the same /vendor layout the guest does.
type MountedImages struct {
	systemLoopback *safeloopback.Loopback
	vendorLoopback *safeloopback.Loopback
	systemMount    *safemount.Mount
	vendorMount    *safemount.Mount
	baseDir        string

	// SystemRoot and VendorRoot are the resolved content roots, which may be
	// the mount points themselves or a nested subdirectory.
	SystemRoot string
	VendorRoot string
}

// mountImages mounts both images and resolves their content roots. On any
// failure, everything mounted so far is torn down before the error is
// returned.
func mountImages(systemImagePath string, vendorImagePath string, baseMountDir string) (mounted *MountedImages, err error) {
	// The teardown defer must reference a local, not the returned pointer:
	// error paths return nil, which would leave everything mounted.
	m := &MountedImages{
		baseDir: baseMountDir,
	}
	defer func() {
		if err != nil {
			m.Close()
		}
	}()

	systemMountPoint := filepath.Join(baseMountDir, SystemImageName)
	err = os.MkdirAll(systemMountPoint, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create mount directory (%s):\n%w", systemMountPoint, err)
	}

	m.systemLoopback, err = safeloopback.NewLoopback(systemImagePath)
	if err != nil {
		reportMountDiagnostics(systemImagePath)
		return nil, fmt.Errorf("%w (image='%s'):\n%w", ErrImageMount, systemImagePath, err)
	}
	warnOnDeviceSizeMismatch(m.systemLoopback)

	m.systemMount, err = safemount.NewMount(m.systemLoopback.DevicePath(), systemMountPoint, "ext4", 0, "", false)
	if err != nil {
		reportMountDiagnostics(systemImagePath)
		return nil, fmt.Errorf("%w (image='%s'):\n%w", ErrImageMount, systemImagePath, err)
	}

	m.SystemRoot = resolveImageRoot(systemMountPoint, SystemImageName)

	vendorMountPoint := filepath.Join(m.SystemRoot, VendorImageName)
	err = os.MkdirAll(vendorMountPoint, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create mount directory (%s):\n%w", vendorMountPoint, err)
	}

	m.vendorLoopback, err = safeloopback.NewLoopback(vendorImagePath)
	if err != nil {
		reportMountDiagnostics(vendorImagePath)
		return nil, fmt.Errorf("%w (image='%s'):\n%w", ErrImageMount, vendorImagePath, err)
	}
	warnOnDeviceSizeMismatch(m.vendorLoopback)

	m.vendorMount, err = safemount.NewMount(m.vendorLoopback.DevicePath(), vendorMountPoint, "ext4", 0, "", false)
	if err != nil {
		reportMountDiagnostics(vendorImagePath)
		return nil, fmt.Errorf("%w (image='%s'):\n%w", ErrImageMount, vendorImagePath, err)
	}

	m.VendorRoot = resolveImageRoot(vendorMountPoint, VendorImageName)

	return m, nil
}

// resolveImageRoot probes for the expected top-level directories directly
// under the mount point, then one level deeper under a partition-named
// subdirectory. If neither probe succeeds the mount point itself is used:
// downstream copies then fail per-file with clear errors instead of the
// whole run silently mounting nothing.
func resolveImageRoot(mountPoint string, partitionName string) string {
	if hasExpectedLayout(mountPoint) {
		return mountPoint
	}

	nested := filepath.Join(mountPoint, partitionName)
	if hasExpectedLayout(nested) {
		logger.Log.Debugf("Partition content is nested (%s)", nested)
		return nested
	}

	logger.Log.Warnf("Could not resolve partition layout under (%s); available entries: %s",
		mountPoint, listDirEntries(mountPoint))
	return mountPoint
}

func hasExpectedLayout(root string) bool {
	for _, dir := range expectedLayoutDirs {
		exists, err := file.DirExists(filepath.Join(root, dir))
		if err != nil || !exists {
			return false
		}
	}
	return true
}

func listDirEntries(dirPath string) string {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return strings.Join(names, ", ")
}

// warnOnDeviceSizeMismatch flags a loopback device whose size differs from
// its backing image file. A mismatch means the mounted filesystem sees a
// truncated view of the image; the run continues but the warning explains
// later mount or copy failures.
func warnOnDeviceSizeMismatch(loopback *safeloopback.Loopback) {
	deviceSize, err := diskutils.BlockDeviceSize(loopback.DevicePath())
	if err != nil {
		logger.Log.Warnf("Could not query loopback device size (%s): %v", loopback.DevicePath(), err)
		return
	}

	imageSize, err := diskutils.ApparentSize(loopback.DiskFilePath())
	if err != nil {
		logger.Log.Warnf("Could not query image size (%s): %v", loopback.DiskFilePath(), err)
		return
	}

	if deviceSize != imageSize {
		logger.Log.Warnf("Loopback device (%s) size (%d bytes) does not match image (%s) size (%d bytes)",
			loopback.DevicePath(), deviceSize, loopback.DiskFilePath(), imageSize)
	}
}

// reportMountDiagnostics surfaces what can be learned about an image that
// failed to attach or mount, and attempts a best-effort repair so a retry of
// the run has a chance.
func reportMountDiagnostics(imagePath string) {
	format, err := detectImageFormat(imagePath)
	if err != nil {
		logger.Log.Warnf("Could not probe failing image (%s): %v", imagePath, err)
	} else {
		logger.Log.Warnf("Failing image (%s) has container format (%s)", imagePath, format)
	}

	checkFilesystemBestEffort(imagePath)
}

// Close tears down whatever was mounted, logging failures. Intended for use
// in defer statements.
func (m *MountedImages) Close() {
	if m.vendorMount != nil {
		m.vendorMount.Close()
		m.vendorMount = nil
	}
	if m.vendorLoopback != nil {
		m.vendorLoopback.Close()
		m.vendorLoopback = nil
	}
	if m.systemMount != nil {
		m.systemMount.Close()
		m.systemMount = nil
	}
	if m.systemLoopback != nil {
		m.systemLoopback.Close()
		m.systemLoopback = nil
	}
	m.removeBaseDir()
}

// CleanClose tears down both mounts and reports any failure. The images must
// not be repackaged if this fails.
func (m *MountedImages) CleanClose() error {
	// Vendor is nested inside the system mount, so it must go first.
	if m.vendorMount != nil {
		err := m.vendorMount.CleanClose()
		if err != nil {
			return fmt.Errorf("%w (mount='%s'):\n%w", ErrImageUnmount, m.vendorMount.Target(), err)
		}
		m.vendorMount = nil
	}
	if m.vendorLoopback != nil {
		err := m.vendorLoopback.CleanClose()
		if err != nil {
			return fmt.Errorf("%w (image='%s'):\n%w", ErrImageUnmount, m.vendorLoopback.DiskFilePath(), err)
		}
		m.vendorLoopback = nil
	}
	if m.systemMount != nil {
		err := m.systemMount.CleanClose()
		if err != nil {
			return fmt.Errorf("%w (mount='%s'):\n%w", ErrImageUnmount, m.systemMount.Target(), err)
		}
		m.systemMount = nil
	}
	if m.systemLoopback != nil {
		err := m.systemLoopback.CleanClose()
		if err != nil {
			return fmt.Errorf("%w (image='%s'):\n%w", ErrImageUnmount, m.systemLoopback.DiskFilePath(), err)
		}
		m.systemLoopback = nil
	}

	m.removeBaseDir()
	return nil
}

func (m *MountedImages) removeBaseDir() {
	if m.baseDir == "" {
		return
	}

	// Non-recursive removal only: if an unmount failed, the directories are
	// not empty and must be left behind for manual recovery.
	os.Remove(filepath.Join(m.baseDir, SystemImageName))
	err := os.Remove(m.baseDir)
	if err != nil {
		logger.Log.Warnf("Failed to remove mount directory (%s): %v", m.baseDir, err)
	}
	m.baseDir = ""
}
