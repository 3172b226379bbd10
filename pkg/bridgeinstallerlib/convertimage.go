package bridgeinstallerlib

import (
	"encoding/json"
	"fmt"

	"github.com/android-image-tools/nativebridge-installer/internal/logger"
	"github.com/android-image-tools/nativebridge-installer/internal/shell"
)

// The container format conversions are delegated to qemu-img; the container
// encoding itself is opaque to this tool.

const containerImageFormat = "vhdx"

type imageFileInfo struct {
	Format      string `json:"format"`
	VirtualSize int64  `json:"virtual-size"`
}

// detectImageFormat probes a disk image file's container format. Used both
// for input validation and as a diagnostic on mount failures.
func detectImageFormat(imagePath string) (string, error) {
	stdout, _, err := shell.Execute("qemu-img", "info", "--output", "json", imagePath)
	if err != nil {
		return "", fmt.Errorf("%w (image='%s'):\n%w", ErrImageFormatDetect, imagePath, err)
	}

	info := imageFileInfo{}
	err = json.Unmarshal([]byte(stdout), &info)
	if err != nil {
		return "", fmt.Errorf("%w (image='%s'):\n%w", ErrImageFormatDetect, imagePath, err)
	}

	return info.Format, nil
}

// convertToRawImage converts a container image into a raw image file. The
// result may still share backing blocks with the source; callers must run
// unshareImageBlocks before modifying it in place.
func convertToRawImage(containerPath string, rawPath string) error {
	logger.Log.Infof("Converting (%s) to raw image (%s)", containerPath, rawPath)

	format, err := detectImageFormat(containerPath)
	if err != nil {
		return err
	}

	err = shell.ExecuteLive(true /*squashErrors*/, "qemu-img", "convert", "-f", format, "-O", "raw",
		containerPath, rawPath)
	if err != nil {
		return fmt.Errorf("%w (image='%s'):\n%w", ErrImageConvert, containerPath, err)
	}

	return nil
}

// convertToContainerImage converts a raw image back into the container
// format, replacing the container file in place.
func convertToContainerImage(rawPath string, containerPath string) error {
	logger.Log.Infof("Converting raw image (%s) to (%s)", rawPath, containerPath)

	err := shell.ExecuteLive(true /*squashErrors*/, "qemu-img", "convert", "-f", "raw",
		"-O", containerImageFormat, rawPath, containerPath)
	if err != nil {
		return fmt.Errorf("%w (image='%s'):\n%w", ErrImageConvert, rawPath, err)
	}

	return nil
}
