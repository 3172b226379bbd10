package bridgeinstallerlib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/android-image-tools/nativebridge-installer/internal/diskutils"
	"github.com/stretchr/testify/assert"
)

func writeTestImage(t *testing.T, name string, sizeInBytes int64) string {
	path := filepath.Join(t.TempDir(), name)
	err := os.WriteFile(path, make([]byte, sizeInBytes), 0o644)
	assert.NoError(t, err)
	return path
}

func TestPlanSizesSystemTarget(t *testing.T) {
	systemPath := writeTestImage(t, "system.img", 4*diskutils.MiB)
	vendorPath := writeTestImage(t, "vendor.img", 2*diskutils.MiB)

	plan, err := planSizes(systemPath, vendorPath, BridgeTypeHoudini)
	assert.NoError(t, err)
	assert.Equal(t, int64(12*diskutils.MiB), plan.SystemTargetBytes)
}

func TestPlanSizesVendorTarget(t *testing.T) {
	systemPath := writeTestImage(t, "system.img", 4*diskutils.MiB)
	vendorPath := writeTestImage(t, "vendor.img", 2*diskutils.MiB)

	vendorUsed, err := diskutils.AllocatedSize(vendorPath)
	assert.NoError(t, err)

	plan, err := planSizes(systemPath, vendorPath, BridgeTypeHoudini)
	assert.NoError(t, err)
	assert.Equal(t, vendorUsed+600*diskutils.MiB+200*diskutils.MiB, plan.VendorTargetBytes)
}

func TestPlanSizesVendorTargetNdk(t *testing.T) {
	systemPath := writeTestImage(t, "system.img", 4*diskutils.MiB)
	vendorPath := writeTestImage(t, "vendor.img", 2*diskutils.MiB)

	houdiniPlan, err := planSizes(systemPath, vendorPath, BridgeTypeHoudini)
	assert.NoError(t, err)

	ndkPlan, err := planSizes(systemPath, vendorPath, BridgeTypeNdk)
	assert.NoError(t, err)

	// The ndk payload budget is 150 MiB smaller than houdini's.
	assert.Equal(t, int64(150*diskutils.MiB), houdiniPlan.VendorTargetBytes-ndkPlan.VendorTargetBytes)
}

func TestPlanSizesVendorTargetNeverBelowApparentSize(t *testing.T) {
	// A sparse vendor image with a huge apparent size but no allocated
	// blocks. The budget-based target would be far below the apparent size,
	// and a grow target below the current size would mean a shrink.
	vendorPath := filepath.Join(t.TempDir(), "vendor.img")
	f, err := os.Create(vendorPath)
	assert.NoError(t, err)
	err = f.Truncate(4 * diskutils.GiB)
	assert.NoError(t, err)
	err = f.Close()
	assert.NoError(t, err)

	systemPath := writeTestImage(t, "system.img", 4*diskutils.MiB)

	plan, err := planSizes(systemPath, vendorPath, BridgeTypeHoudini)
	assert.NoError(t, err)
	assert.Equal(t, int64(4*diskutils.GiB), plan.VendorTargetBytes)
}

func TestExpandVendorTarget(t *testing.T) {
	plan := SizePlan{VendorTargetBytes: diskutils.GiB}

	plan.expandVendorTarget()
	assert.Equal(t, int64(diskutils.GiB+300*diskutils.MiB), plan.VendorTargetBytes)
}

func TestPayloadBudgetBytes(t *testing.T) {
	assert.Equal(t, int64(600*diskutils.MiB), payloadBudgetBytes(BridgeTypeHoudini))
	assert.Equal(t, int64(450*diskutils.MiB), payloadBudgetBytes(BridgeTypeNdk))
}

func TestVendorNeedsExpansionOnLargeFilesystem(t *testing.T) {
	// The host temp directory is assumed to have more than 400 MiB free.
	free, err := diskutils.FreeSpace(os.TempDir())
	assert.NoError(t, err)
	if free < 500*diskutils.MiB {
		t.Skip("Test requires at least 500 MiB free in the temp directory")
	}

	needsExpansion, err := vendorNeedsExpansion(os.TempDir())
	assert.NoError(t, err)
	assert.False(t, needsExpansion)
}
