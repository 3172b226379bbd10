package bridgeinstallerlib

import (
	"fmt"
)

// BridgeInstallerError is a named, stable error for a specific failure site.
// Instances are declared as package-level sentinels and matched with
// errors.Is.
type BridgeInstallerError struct {
	name    string
	message string
}

func NewBridgeInstallerError(name string, message string) *BridgeInstallerError {
	return &BridgeInstallerError{
		name:    name,
		message: message,
	}
}

func (e *BridgeInstallerError) Name() string {
	return e.name
}

func (e *BridgeInstallerError) Error() string {
	return fmt.Sprintf("[%s] %s", e.name, e.message)
}

var (
	// Pre-flight validation errors
	ErrInvalidWorkDir        = NewBridgeInstallerError("Options:WorkDir", "working directory does not exist")
	ErrInvalidPayloadDir     = NewBridgeInstallerError("Options:PayloadDir", "payload directory does not exist")
	ErrInvalidBridgeType     = NewBridgeInstallerError("Options:BridgeType", "invalid translation layer type")
	ErrUnknownPayloadVariant = NewBridgeInstallerError("Options:PayloadVariant", "unknown payload variant")
	ErrVariantTypeMismatch   = NewBridgeInstallerError("Options:VariantTypeMismatch", "payload variant does not match the selected translation layer type")
	ErrInvalidArchiveName    = NewBridgeInstallerError("Options:ArchiveName", "invalid archive name")
	ErrMissingSourceImage    = NewBridgeInstallerError("Options:SourceImage", "source disk image not found in working directory")

	// Filesystem operation errors
	ErrFilesystemCheck   = NewBridgeInstallerError("Filesystem:Check", "failed to check and repair filesystem with e2fsck")
	ErrFilesystemGrow    = NewBridgeInstallerError("Filesystem:Grow", "failed to grow filesystem with resize2fs")
	ErrFilesystemShrink  = NewBridgeInstallerError("Filesystem:Shrink", "failed to shrink filesystem with resize2fs")
	ErrImageAllocate     = NewBridgeInstallerError("Image:Allocate", "failed to allocate space for image file")
	ErrUnshareBlocks     = NewBridgeInstallerError("Image:UnshareBlocks", "failed to materialize shared blocks")
	ErrImageConvert      = NewBridgeInstallerError("Image:Convert", "failed to convert image between container and raw format")
	ErrImageFormatDetect = NewBridgeInstallerError("Image:FormatDetect", "failed to detect image container format")

	// Mount errors
	ErrImageMount   = NewBridgeInstallerError("Mount:Mount", "failed to mount image")
	ErrImageUnmount = NewBridgeInstallerError("Mount:Unmount", "failed to unmount image")

	// Payload errors
	ErrMandatoryCopy    = NewBridgeInstallerError("Payload:MandatoryCopy", "failed to copy mandatory payload entry")
	ErrConfigFileAbsent = NewBridgeInstallerError("Payload:ConfigFileAbsent", "required configuration file is absent from the image")
)
