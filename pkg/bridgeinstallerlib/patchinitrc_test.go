package bridgeinstallerlib

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/android-image-tools/nativebridge-installer/internal/textedit"
	"github.com/stretchr/testify/assert"
)

const sampleInitScript = `on early-init
    mkdir /dev/binfmt_misc
    mount binfmt_misc binfmt_misc /proc/sys/fs/binfmt_misc

on boot
    exec -- /system/bin/mount --bind /vendor/bin/houdini /system/bin/houdini
    exec -- /system/bin/mount --bind /vendor/bin/houdini64 /system/bin/houdini64
    setprop sys.usb.config adb
`

func writeTestInitScript(t *testing.T, content string) string {
	vendorRoot := t.TempDir()
	scriptPath := filepath.Join(vendorRoot, initScriptRelPath)

	err := os.MkdirAll(filepath.Dir(scriptPath), 0o755)
	assert.NoError(t, err)
	err = os.WriteFile(scriptPath, []byte(content), 0o644)
	assert.NoError(t, err)

	return vendorRoot
}

func TestPatchInitScriptHoudini(t *testing.T) {
	vendorRoot := writeTestInitScript(t, sampleInitScript)

	err := patchInitScript(vendorRoot, BridgeTypeHoudini)
	assert.NoError(t, err)

	patched, err := os.ReadFile(filepath.Join(vendorRoot, initScriptRelPath))
	assert.NoError(t, err)
	lines := strings.Split(string(patched), "\n")

	// Each registration line directly follows its bind-mount line, and the
	// 32-bit and 64-bit ELF machine fields must not be swapped.
	bindIndex32 := indexOfLineContaining(lines, "--bind /vendor/bin/houdini ")
	assert.GreaterOrEqual(t, bindIndex32, 0)
	assert.Contains(t, lines[bindIndex32+1], `:arm_exe:`)
	assert.Contains(t, lines[bindIndex32+1], `\x02\x00\x28\x00`)
	assert.Contains(t, lines[bindIndex32+1], "/system/bin/houdini:P")

	bindIndex64 := indexOfLineContaining(lines, "--bind /vendor/bin/houdini64")
	assert.GreaterOrEqual(t, bindIndex64, 0)
	assert.Contains(t, lines[bindIndex64+1], `:arm64_exe:`)
	assert.Contains(t, lines[bindIndex64+1], `\x02\x00\xb7\x00`)
	assert.Contains(t, lines[bindIndex64+1], "/system/bin/houdini64:P")
}

func TestPatchInitScriptHoudiniIdempotent(t *testing.T) {
	vendorRoot := writeTestInitScript(t, sampleInitScript)

	err := patchInitScript(vendorRoot, BridgeTypeHoudini)
	assert.NoError(t, err)

	firstPass, err := os.ReadFile(filepath.Join(vendorRoot, initScriptRelPath))
	assert.NoError(t, err)

	err = patchInitScript(vendorRoot, BridgeTypeHoudini)
	assert.NoError(t, err)

	secondPass, err := os.ReadFile(filepath.Join(vendorRoot, initScriptRelPath))
	assert.NoError(t, err)
	assert.Equal(t, string(firstPass), string(secondPass))
}

func TestPatchInitScriptHoudiniWritesBackup(t *testing.T) {
	vendorRoot := writeTestInitScript(t, sampleInitScript)

	err := patchInitScript(vendorRoot, BridgeTypeHoudini)
	assert.NoError(t, err)

	backup, err := os.ReadFile(filepath.Join(vendorRoot, initScriptRelPath) + textedit.BackupSuffix)
	assert.NoError(t, err)
	assert.Equal(t, sampleInitScript, string(backup))
}

func TestPatchInitScriptNdkDeletesHoudiniLines(t *testing.T) {
	vendorRoot := writeTestInitScript(t, sampleInitScript)

	// Patch for houdini first so both bind mounts and registrations exist.
	err := patchInitScript(vendorRoot, BridgeTypeHoudini)
	assert.NoError(t, err)

	err = patchInitScript(vendorRoot, BridgeTypeNdk)
	assert.NoError(t, err)

	patched, err := os.ReadFile(filepath.Join(vendorRoot, initScriptRelPath))
	assert.NoError(t, err)
	assert.NotContains(t, string(patched), "houdini")
	assert.NotContains(t, string(patched), "binfmt_misc/register")

	// The unrelated lines survive.
	assert.Contains(t, string(patched), "setprop sys.usb.config adb")
	assert.Contains(t, string(patched), "mount binfmt_misc binfmt_misc /proc/sys/fs/binfmt_misc")
}

func TestPatchInitScriptMissingScript(t *testing.T) {
	err := patchInitScript(t.TempDir(), BridgeTypeHoudini)
	assert.ErrorIs(t, err, ErrConfigFileAbsent)
}

func TestBindMountPatternBoundaries(t *testing.T) {
	pattern32 := bindMountPattern("houdini")
	pattern64 := bindMountPattern("houdini64")

	line32 := "    exec -- /system/bin/mount --bind /vendor/bin/houdini /system/bin/houdini"
	line64 := "    exec -- /system/bin/mount --bind /vendor/bin/houdini64 /system/bin/houdini64"

	assert.True(t, pattern32.MatchString(line32))
	assert.False(t, pattern32.MatchString(line64))
	assert.True(t, pattern64.MatchString(line64))
	assert.False(t, pattern64.MatchString(line32))
}

func indexOfLineContaining(lines []string, substring string) int {
	for i, line := range lines {
		if strings.Contains(line, substring) {
			return i
		}
	}
	return -1
}
