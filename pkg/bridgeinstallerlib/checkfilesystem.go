package bridgeinstallerlib

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/android-image-tools/nativebridge-installer/internal/logger"
	"github.com/android-image-tools/nativebridge-installer/internal/shell"
)

// e2fsck exit codes: 0 = clean, 1 = errors corrected, 2 = errors corrected
// but a reboot would be required on a live system. Anything above 2 means
// uncorrected errors.
const (
	e2fsckMaxOkPreen  = 1
	e2fsckMaxOkForced = 2
)

// checkFilesystem verifies and repairs the ext4 filesystem inside the raw
// image. Ladder: a quiet automatic (preen) pass first; if that reports
// unrecoverable errors, a full forced repair pass; if that also fails, the
// error propagates and the caller decides whether the run can continue
// degraded.
func checkFilesystem(imagePath string) error {
	logger.Log.Infof("Checking filesystem (%s)", imagePath)

	err := runE2fsck(imagePath, e2fsckMaxOkPreen, "-p", "-f")
	if err == nil {
		return nil
	}

	logger.Log.Warnf("Preen filesystem check failed (%s), forcing full repair: %v", imagePath, err)

	err = runE2fsck(imagePath, e2fsckMaxOkForced, "-y", "-f")
	if err != nil {
		return fmt.Errorf("%w (image='%s'):\n%w", ErrFilesystemCheck, imagePath, err)
	}

	return nil
}

// checkFilesystemBestEffort is checkFilesystem for callers that continue
// degraded: failure is logged as a warning instead of propagated.
func checkFilesystemBestEffort(imagePath string) {
	err := checkFilesystem(imagePath)
	if err != nil {
		logger.Log.Warnf("Filesystem check failed, continuing anyway: %v", err)
	}
}

// runE2fsck runs e2fsck with the given flags, tolerating exit codes up to
// maxOkExitCode since e2fsck reports successful repairs with non-zero codes.
func runE2fsck(imagePath string, maxOkExitCode int, flags ...string) error {
	args := append(append([]string(nil), flags...), imagePath)

	err := shell.ExecuteLive(true /*squashErrors*/, "e2fsck", args...)
	if err != nil {
		exitErr := (*exec.ExitError)(nil)
		if errors.As(err, &exitErr) && exitErr.ExitCode() <= maxOkExitCode {
			logger.Log.Debugf("e2fsck corrected errors (%s), exit code %d", imagePath, exitErr.ExitCode())
			return nil
		}
		return fmt.Errorf("e2fsck failed (%s):\n%w", imagePath, err)
	}

	return nil
}
