package bridgeinstallerlib

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/android-image-tools/nativebridge-installer/internal/logger"
)

// All file timestamps in the finished images are normalized to a fixed epoch
// so repeated builds produce deterministic packaging output.
// 2009-01-01T00:00:00Z, the platform's customary release epoch.
const imageEpochSeconds = 1230768000

// normalizeTimestamps sets every file's modification and access time under
// the root to the fixed epoch. Symlinks are skipped: their timestamps are
// not representable portably and are ignored by the packaging.
func normalizeTimestamps(root string) error {
	logger.Log.Infof("Normalizing timestamps under (%s)", root)

	epoch := time.Unix(imageEpochSeconds, 0).UTC()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.Type() == fs.ModeSymlink {
			return nil
		}

		err = os.Chtimes(path, epoch, epoch)
		if err != nil {
			return fmt.Errorf("failed to set timestamps on (%s):\n%w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to normalize timestamps under (%s):\n%w", root, err)
	}

	return nil
}

// finalizeImage verifies the unmounted raw image, shrinks it, converts it
// back to the container format, and removes the raw intermediate.
// finalSizeInBytes of 0 means shrink to the filesystem's minimum; a positive
// value preserves that much total size (the deliberate free-space buffer of
// a payload-bearing partition).
func finalizeImage(rawImagePath string, containerImagePath string, finalSizeInBytes int64, keepRaw bool) error {
	err := checkFilesystem(rawImagePath)
	if err != nil {
		return err
	}

	if finalSizeInBytes > 0 {
		err = growOrShrinkToBytes(rawImagePath, finalSizeInBytes)
	} else {
		err = minimizeImage(rawImagePath)
	}
	if err != nil {
		return err
	}

	err = convertToContainerImage(rawImagePath, containerImagePath)
	if err != nil {
		return err
	}

	if keepRaw {
		logger.Log.Infof("Keeping raw intermediate image (%s)", rawImagePath)
		return nil
	}

	err = os.Remove(rawImagePath)
	if err != nil {
		return fmt.Errorf("failed to remove raw intermediate image (%s):\n%w", rawImagePath, err)
	}

	return nil
}
