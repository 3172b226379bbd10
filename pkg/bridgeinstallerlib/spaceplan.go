package bridgeinstallerlib

import (
	"fmt"

	"github.com/android-image-tools/nativebridge-installer/internal/diskutils"
	"github.com/android-image-tools/nativebridge-installer/internal/logger"
)

const (
	// The system partition holds multiple translation-layer variants over the
	// image's lifetime; give it generous headroom.
	systemGrowthFactor = 3

	// Fixed payload footprints per translation layer type.
	houdiniPayloadBudgetBytes = 600 * diskutils.MiB
	ndkPayloadBudgetBytes     = 450 * diskutils.MiB

	// Safety buffer on top of the payload budget.
	vendorSafetyBufferBytes = 200 * diskutils.MiB

	// Post-mount free space below this triggers a re-plan.
	vendorMinFreeBytes = 400 * diskutils.MiB

	// How much the vendor image grows per re-plan.
	vendorExpandIncrementBytes = 300 * diskutils.MiB
)

// SizePlan holds the target sizes computed before the images are mounted.
type SizePlan struct {
	SystemTargetBytes int64
	VendorTargetBytes int64
}

// planSizes computes the initial grow targets. Pre-mount estimates work from
// the image files' sizes; they can undercount the space needed once
// filesystem metadata overhead and reserved blocks are accounted for, which
// is why vendorNeedsExpansion exists as a second phase.
func planSizes(systemImagePath string, vendorImagePath string, bridgeType BridgeType) (SizePlan, error) {
	plan := SizePlan{}

	systemApparentSize, err := diskutils.ApparentSize(systemImagePath)
	if err != nil {
		return plan, err
	}

	vendorApparentSize, err := diskutils.ApparentSize(vendorImagePath)
	if err != nil {
		return plan, err
	}

	vendorUsedSize, err := diskutils.AllocatedSize(vendorImagePath)
	if err != nil {
		return plan, err
	}

	plan.SystemTargetBytes = systemApparentSize * systemGrowthFactor

	vendorTarget := vendorUsedSize + payloadBudgetBytes(bridgeType) + vendorSafetyBufferBytes
	// Target size must never fall below the current apparent size.
	plan.VendorTargetBytes = max(vendorTarget, vendorApparentSize)

	logger.Log.Infof("Planned sizes: system %d bytes, vendor %d bytes",
		plan.SystemTargetBytes, plan.VendorTargetBytes)

	return plan, nil
}

// vendorNeedsExpansion checks post-mount free space on the vendor mount and
// reports whether the image must be expanded before the payload is copied.
func vendorNeedsExpansion(vendorRoot string) (bool, error) {
	freeBytes, err := diskutils.FreeSpace(vendorRoot)
	if err != nil {
		return false, fmt.Errorf("failed to query free space on vendor mount (%s):\n%w", vendorRoot, err)
	}

	logger.Log.Debugf("Vendor free space: %d bytes", freeBytes)

	if freeBytes < vendorMinFreeBytes {
		logger.Log.Infof("Vendor free space (%d bytes) below threshold (%d bytes), expanding",
			freeBytes, int64(vendorMinFreeBytes))
		return true, nil
	}

	return false, nil
}

// expandVendorTarget grows the plan's vendor target by one fixed increment.
func (p *SizePlan) expandVendorTarget() {
	p.VendorTargetBytes += vendorExpandIncrementBytes
}

func payloadBudgetBytes(bridgeType BridgeType) int64 {
	switch bridgeType {
	case BridgeTypeNdk:
		return ndkPayloadBudgetBytes
	default:
		return houdiniPayloadBudgetBytes
	}
}
