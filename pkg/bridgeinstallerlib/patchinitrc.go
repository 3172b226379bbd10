package bridgeinstallerlib

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/android-image-tools/nativebridge-installer/internal/file"
	"github.com/android-image-tools/nativebridge-installer/internal/logger"
	"github.com/android-image-tools/nativebridge-installer/internal/textedit"
)

// Init script in the vendor partition that bind-mounts the translator
// binaries into /system/bin at boot.
const initScriptRelPath = "etc/init/hw/init.windows_x86_64.rc"

// binfmtRegistration ties a translator binary to the binfmt_misc line that
// registers its executable format signature with the kernel. The 32-bit and
// 64-bit ELF magics differ in the e_machine field (0x28 = EM_ARM, 0xb7 =
// EM_AARCH64) and must not be confused.
type binfmtRegistration struct {
	binary       string
	registerLine string
}

func houdiniRegistrations() []binfmtRegistration {
	return []binfmtRegistration{
		{
			binary: "houdini",
			registerLine: `    write /proc/sys/fs/binfmt_misc/register ":arm_exe:M::` +
				`\x7f\x45\x4c\x46\x01\x01\x01\x00\x00\x00\x00\x00\x00\x00\x00\x00\x02\x00\x28\x00:` +
				`\xff\xff\xff\xff\xff\xff\xff\x00\xff\xff\xff\xff\xff\xff\xff\xff\xfe\xff\xff\xff:` +
				`/system/bin/houdini:P"`,
		},
		{
			binary: "houdini64",
			registerLine: `    write /proc/sys/fs/binfmt_misc/register ":arm64_exe:M::` +
				`\x7f\x45\x4c\x46\x02\x01\x01\x00\x00\x00\x00\x00\x00\x00\x00\x00\x02\x00\xb7\x00:` +
				`\xff\xff\xff\xff\xff\xff\xff\x00\xff\xff\xff\xff\xff\xff\xff\xff\xfe\xff\xff\xff:` +
				`/system/bin/houdini64:P"`,
		},
	}
}

// bindMountPattern matches the init-script line that bind-mounts the named
// translator binary. The trailing boundary keeps "houdini" from matching
// "houdini64" lines.
func bindMountPattern(binary string) *regexp.Regexp {
	return regexp.MustCompile(`^\s*exec\s.*\bmount\b.*--bind\s+\S*/` + regexp.QuoteMeta(binary) + `(\s|$)`)
}

// binfmtRegisterPattern matches any previously inserted houdini binfmt
// registration line.
var binfmtRegisterPattern = regexp.MustCompile(`binfmt_misc/register\s+":arm(64)?_exe:`)

// patchInitScript adjusts the vendor init script for the selected
// translation layer. For houdini, a binfmt_misc registration is inserted
// after each bind-mount of a translator binary; re-running against an
// already-patched script is a no-op. For ndk, the houdini bind-mount lines
// are deleted instead: ndk registers its formats through its own config and
// the mounts would otherwise shadow it.
func patchInitScript(vendorRoot string, bridgeType BridgeType) error {
	scriptPath := filepath.Join(vendorRoot, initScriptRelPath)

	scriptExists, err := file.IsFile(scriptPath)
	if err != nil {
		return fmt.Errorf("failed to check for init script (%s):\n%w", scriptPath, err)
	}
	if !scriptExists {
		return fmt.Errorf("%w (file='%s')", ErrConfigFileAbsent, scriptPath)
	}

	transforms := []textedit.Transform(nil)
	switch bridgeType {
	case BridgeTypeHoudini:
		for _, registration := range houdiniRegistrations() {
			transforms = append(transforms,
				textedit.InsertAfter(bindMountPattern(registration.binary), []string{registration.registerLine}))
		}

	case BridgeTypeNdk:
		for _, registration := range houdiniRegistrations() {
			transforms = append(transforms, textedit.DeleteMatching(bindMountPattern(registration.binary)))
		}
		transforms = append(transforms, textedit.DeleteMatching(binfmtRegisterPattern))
	}

	editCount, err := textedit.PatchFile(scriptPath, transforms...)
	if err != nil {
		return fmt.Errorf("failed to patch init script (%s):\n%w", scriptPath, err)
	}

	if editCount == 0 {
		logger.Log.Infof("Init script (%s) already patched, no edits made", scriptPath)
	} else {
		logger.Log.Infof("Patched init script (%s), %d edits", scriptPath, editCount)
	}

	return nil
}
