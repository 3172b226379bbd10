// Package bridgeinstallerlib provisions Android-on-Windows system/vendor
// disk images with an ARM translation runtime. The images travel through a
// resize, unshare, mount, install, patch, shrink lifecycle; every stage
// verifies filesystem integrity before and after its risky operations.
package bridgeinstallerlib

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/android-image-tools/nativebridge-installer/internal/diskutils"
	"github.com/android-image-tools/nativebridge-installer/internal/logger"
	"github.com/android-image-tools/nativebridge-installer/internal/tarutils"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	ToolVersion = "0.4.0"

	OtelTracerName = "nativebridgeinstaller"
)

// InstallBridge runs the full provisioning pipeline against the working
// directory described by the options. The pipeline is strictly sequential:
// every step mutates on-disk filesystem state the next step depends on.
func InstallBridge(ctx context.Context, options Options) error {
	variant, err := options.IsValid()
	if err != nil {
		return err
	}

	ctx, span := otel.GetTracerProvider().Tracer(OtelTracerName).Start(ctx, "install_bridge")
	span.SetAttributes(
		attribute.String("bridge_type", string(options.BridgeType)),
		attribute.String("payload_variant", variant.Name),
	)
	defer span.End()

	logger.Log.Infof("Installing %s translation layer (variant %s) into (%s)",
		options.BridgeType, variant.Name, options.WorkDir)

	systemRaw := options.RawImagePath(SystemImageName)
	vendorRaw := options.RawImagePath(VendorImageName)

	err = convertImagesToRaw(ctx, &options)
	if err != nil {
		return err
	}

	plan, err := planSizes(systemRaw, vendorRaw, options.BridgeType)
	if err != nil {
		return err
	}

	err = prepareImages(ctx, &options, plan)
	if err != nil {
		return err
	}

	vendorUsedBytes, err := populateImages(ctx, &options, &plan, variant)
	if err != nil {
		return err
	}

	err = finalizeImages(ctx, &options, plan, vendorUsedBytes)
	if err != nil {
		return err
	}

	if options.ArchiveName != "" {
		err = archiveWorkDir(ctx, &options)
		if err != nil {
			return err
		}
	}

	logger.Log.Infof("Success!")
	return nil
}

func convertImagesToRaw(ctx context.Context, options *Options) error {
	_, span := otel.GetTracerProvider().Tracer(OtelTracerName).Start(ctx, "convert_to_raw")
	defer span.End()

	for _, imageName := range []string{SystemImageName, VendorImageName} {
		err := convertToRawImage(options.ContainerImagePath(imageName), options.RawImagePath(imageName))
		if err != nil {
			return err
		}
	}
	return nil
}

// prepareImages grows both images to their planned sizes and materializes
// any copy-on-write blocks left behind by the container conversion. In-place
// writes are unsafe until both steps complete.
func prepareImages(ctx context.Context, options *Options, plan SizePlan) error {
	_, span := otel.GetTracerProvider().Tracer(OtelTracerName).Start(ctx, "prepare_images")
	defer span.End()

	systemRaw := options.RawImagePath(SystemImageName)
	vendorRaw := options.RawImagePath(VendorImageName)

	err := growImage(systemRaw, plan.SystemTargetBytes)
	if err != nil {
		return err
	}

	err = unshareImageBlocks(systemRaw, plan.SystemTargetBytes)
	if err != nil {
		return err
	}

	err = growImage(vendorRaw, plan.VendorTargetBytes)
	if err != nil {
		return err
	}

	err = unshareImageBlocks(vendorRaw, plan.VendorTargetBytes)
	if err != nil {
		return err
	}

	return nil
}

// populateImages mounts both images, installs the payload, and patches the
// configuration artifacts. Returns the vendor filesystem's used size,
// measured while still mounted, for the final shrink calculation.
func populateImages(ctx context.Context, options *Options, plan *SizePlan, variant VariantEntry,
) (vendorUsedBytes int64, err error) {
	ctx, span := otel.GetTracerProvider().Tracer(OtelTracerName).Start(ctx, "populate_images")
	defer span.End()

	systemRaw := options.RawImagePath(SystemImageName)
	vendorRaw := options.RawImagePath(VendorImageName)

	baseMountDir := filepath.Join(options.WorkDir, "mnt-"+uuid.NewString()[:8])

	mounted, err := mountImages(systemRaw, vendorRaw, baseMountDir)
	if err != nil {
		return 0, err
	}
	defer mounted.Close()

	// Pre-mount size estimates from block usage can undercount the space
	// needed once filesystem metadata overhead and reserved blocks are
	// accounted for. Re-check now that the real filesystem is visible.
	needsExpansion, err := vendorNeedsExpansion(mounted.VendorRoot)
	if err != nil {
		return 0, err
	}

	if needsExpansion {
		err = mounted.CleanClose()
		if err != nil {
			return 0, err
		}

		plan.expandVendorTarget()
		err = growImage(vendorRaw, plan.VendorTargetBytes)
		if err != nil {
			return 0, err
		}

		mounted, err = mountImages(systemRaw, vendorRaw, baseMountDir)
		if err != nil {
			return 0, err
		}
		defer mounted.Close()
	}

	// The two translation layers are mutually exclusive; sweep out the other
	// one before installing.
	err = removeBridge(otherBridgeType(options.BridgeType), mounted.SystemRoot, mounted.VendorRoot)
	if err != nil {
		return 0, err
	}

	variantDir := filepath.Join(options.PayloadDir, variant.Subdir)
	err = installPayload(variantDir, options.BridgeType, mounted.SystemRoot, mounted.VendorRoot)
	if err != nil {
		return 0, err
	}

	err = patchBuildProps(mounted.SystemRoot, options.BridgeType)
	if err != nil {
		return 0, err
	}

	err = patchInitScript(mounted.VendorRoot, options.BridgeType)
	if err != nil {
		return 0, err
	}

	err = normalizeTimestamps(mounted.SystemRoot)
	if err != nil {
		return 0, err
	}
	err = normalizeTimestamps(mounted.VendorRoot)
	if err != nil {
		return 0, err
	}

	vendorUsedBytes, err = diskutils.UsedSpace(mounted.VendorRoot)
	if err != nil {
		return 0, err
	}

	// An image must not be repackaged while its teardown has failed, so a
	// failure here is fatal rather than logged.
	err = mounted.CleanClose()
	if err != nil {
		return 0, err
	}

	return vendorUsedBytes, nil
}

// finalizeImages shrinks both images and converts them back to the
// container format. The system image shrinks to its minimum; the vendor
// image keeps a deliberate free-space buffer so the guest can write to it.
func finalizeImages(ctx context.Context, options *Options, plan SizePlan, vendorUsedBytes int64) error {
	_, span := otel.GetTracerProvider().Tracer(OtelTracerName).Start(ctx, "finalize_images")
	defer span.End()

	err := finalizeImage(options.RawImagePath(SystemImageName), options.ContainerImagePath(SystemImageName),
		0, options.KeepRawImages)
	if err != nil {
		return err
	}

	vendorFinalBytes := vendorUsedBytes + vendorSafetyBufferBytes
	if options.PreservePlannedSize {
		vendorFinalBytes = plan.VendorTargetBytes
	}

	err = finalizeImage(options.RawImagePath(VendorImageName), options.ContainerImagePath(VendorImageName),
		vendorFinalBytes, options.KeepRawImages)
	if err != nil {
		return err
	}

	return nil
}

func archiveWorkDir(ctx context.Context, options *Options) error {
	_, span := otel.GetTracerProvider().Tracer(OtelTracerName).Start(ctx, "archive_workdir")
	defer span.End()

	archivePath := filepath.Join(options.WorkDir, options.ArchiveName+".tar.gz")

	err := tarutils.CreateTarGzArchive(options.WorkDir, archivePath)
	if err != nil {
		return fmt.Errorf("failed to archive working directory:\n%w", err)
	}

	return nil
}

func otherBridgeType(bridgeType BridgeType) BridgeType {
	if bridgeType == BridgeTypeHoudini {
		return BridgeTypeNdk
	}
	return BridgeTypeHoudini
}
