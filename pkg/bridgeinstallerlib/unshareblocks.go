package bridgeinstallerlib

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/android-image-tools/nativebridge-installer/internal/diskutils"
	"github.com/android-image-tools/nativebridge-installer/internal/logger"
	"github.com/android-image-tools/nativebridge-installer/internal/shell"
)

// unshareImageBlocks converts an image whose blocks may still alias shared
// backing storage (as produced by the container-to-raw conversion) into one
// with fully materialized, independently writable blocks.
//
// The image is temporarily doubled in size first: the extra headroom forces
// the filesystem to own genuinely allocated blocks and gives the unshare
// pass room to relocate shared ones. Afterwards the image is resized to its
// real target.
func unshareImageBlocks(imagePath string, finalTargetSizeInBytes int64) error {
	logger.Log.Infof("Materializing shared blocks (%s)", imagePath)

	err := checkFilesystem(imagePath)
	if err != nil {
		return err
	}

	apparentSize, err := diskutils.ApparentSize(imagePath)
	if err != nil {
		return err
	}

	headroomSizeInSectors := diskutils.BytesToSectors(apparentSize * 2)

	// Truncate rather than allocate: the headroom is mostly never written, so
	// a sparse extension avoids doubling the image's footprint on the host.
	err = diskutils.Truncate(imagePath, diskutils.SectorsToBytes(headroomSizeInSectors))
	if err != nil {
		return fmt.Errorf("%w (image='%s'):\n%w", ErrImageAllocate, imagePath, err)
	}

	err = resizeFilesystemToSectors(imagePath, headroomSizeInSectors)
	if err != nil {
		return fmt.Errorf("%w (image='%s'):\n%w", ErrFilesystemGrow, imagePath, err)
	}

	err = runUnsharePass(imagePath)
	if err != nil {
		// The unshare pass is not available on all e2fsprogs builds. A
		// generic forced repair is a weaker guarantee: it leaves the image
		// usable but does not promise full materialization.
		logger.Log.Warnf("Block unshare pass failed (%s), falling back to forced repair; "+
			"blocks may not be fully materialized: %v", imagePath, err)

		err = runE2fsck(imagePath, e2fsckMaxOkForced, "-y", "-f")
		if err != nil {
			return fmt.Errorf("%w (image='%s'):\n%w", ErrUnshareBlocks, imagePath, err)
		}
	}

	if finalTargetSizeInBytes > 0 {
		err = shrinkImageToSectors(imagePath, diskutils.BytesToSectors(finalTargetSizeInBytes))
	} else {
		err = minimizeImage(imagePath)
	}
	if err != nil {
		return err
	}

	// The image may still be usable even if this final pass reports errors.
	checkFilesystemBestEffort(imagePath)

	return nil
}

func runUnsharePass(imagePath string) error {
	err := shell.ExecuteLive(true /*squashErrors*/, "e2fsck", "-E", "unshare_blocks", "-y", "-f", imagePath)
	if err != nil {
		exitErr := (*exec.ExitError)(nil)
		if errors.As(err, &exitErr) && exitErr.ExitCode() <= e2fsckMaxOkForced {
			return nil
		}
		return fmt.Errorf("e2fsck unshare_blocks failed (%s):\n%w", imagePath, err)
	}
	return nil
}
