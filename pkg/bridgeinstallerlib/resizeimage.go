package bridgeinstallerlib

import (
	"fmt"

	"github.com/android-image-tools/nativebridge-installer/internal/diskutils"
	"github.com/android-image-tools/nativebridge-installer/internal/logger"
	"github.com/android-image-tools/nativebridge-installer/internal/shell"
)

// growImage extends the raw image file to the target size and grows the
// contained filesystem to fill it. All size arithmetic happens in 512-byte
// sectors; bytes appear only at the allocation boundary.
func growImage(imagePath string, targetSizeInBytes int64) error {
	targetSizeInSectors := diskutils.BytesToSectors(targetSizeInBytes)

	logger.Log.Infof("Growing image (%s) to %d sectors", imagePath, targetSizeInSectors)

	err := checkFilesystem(imagePath)
	if err != nil {
		return err
	}

	err = diskutils.Allocate(imagePath, diskutils.SectorsToBytes(targetSizeInSectors))
	if err != nil {
		return fmt.Errorf("%w (image='%s'):\n%w", ErrImageAllocate, imagePath, err)
	}

	err = resizeFilesystemToSectors(imagePath, targetSizeInSectors)
	if err != nil {
		// resize2fs is failure-prone right after an allocation. Re-check the
		// filesystem and retry once before propagating.
		logger.Log.Warnf("Filesystem grow failed (%s), re-checking and retrying: %v", imagePath, err)

		err = checkFilesystem(imagePath)
		if err != nil {
			return err
		}

		err = resizeFilesystemToSectors(imagePath, targetSizeInSectors)
		if err != nil {
			return fmt.Errorf("%w (image='%s'):\n%w", ErrFilesystemGrow, imagePath, err)
		}
	}

	return nil
}

// minimizeImage shrinks the contained filesystem to its minimum viable size.
// The image file itself is left at its current length; the container format
// conversion is not obligated to reclaim trailing free space.
func minimizeImage(imagePath string) error {
	logger.Log.Infof("Minimizing image (%s)", imagePath)

	err := runResize2fs(imagePath, "-M")
	if err != nil {
		logger.Log.Warnf("Filesystem minimize failed (%s), re-checking and retrying: %v", imagePath, err)

		err = checkFilesystem(imagePath)
		if err != nil {
			return err
		}

		err = runResize2fs(imagePath, "-M")
		if err != nil {
			return fmt.Errorf("%w (image='%s'):\n%w", ErrFilesystemShrink, imagePath, err)
		}
	}

	return nil
}

// shrinkImageToSectors shrinks the contained filesystem to an explicit
// sector count, used when a deliberate free-space buffer must survive the
// final shrink.
func shrinkImageToSectors(imagePath string, targetSizeInSectors int64) error {
	logger.Log.Infof("Shrinking image (%s) to %d sectors", imagePath, targetSizeInSectors)

	err := resizeFilesystemToSectors(imagePath, targetSizeInSectors)
	if err != nil {
		logger.Log.Warnf("Filesystem shrink failed (%s), re-checking and retrying: %v", imagePath, err)

		err = checkFilesystem(imagePath)
		if err != nil {
			return err
		}

		err = resizeFilesystemToSectors(imagePath, targetSizeInSectors)
		if err != nil {
			return fmt.Errorf("%w (image='%s'):\n%w", ErrFilesystemShrink, imagePath, err)
		}
	}

	return nil
}

// growOrShrinkToBytes resizes the filesystem to an explicit byte size in
// either direction, allocating file space first when growing.
func growOrShrinkToBytes(imagePath string, targetSizeInBytes int64) error {
	apparentSize, err := diskutils.ApparentSize(imagePath)
	if err != nil {
		return err
	}

	if targetSizeInBytes > apparentSize {
		return growImage(imagePath, targetSizeInBytes)
	}
	return shrinkImageToSectors(imagePath, diskutils.BytesToSectors(targetSizeInBytes))
}

func resizeFilesystemToSectors(imagePath string, sizeInSectors int64) error {
	// The 's' suffix makes resize2fs interpret the size in 512-byte sectors,
	// matching the unit used for the allocation above.
	return runResize2fs(imagePath, fmt.Sprintf("%ds", sizeInSectors))
}

func runResize2fs(imagePath string, sizeArg string) error {
	err := shell.ExecuteLive(true /*squashErrors*/, "resize2fs", imagePath, sizeArg)
	if err != nil {
		return fmt.Errorf("resize2fs failed (%s, %s):\n%w", imagePath, sizeArg, err)
	}
	return nil
}
