package bridgeinstallerlib

import (
	"fmt"
	"path/filepath"

	"github.com/android-image-tools/nativebridge-installer/internal/file"
	"github.com/asaskevich/govalidator"
	"gopkg.in/yaml.v3"
)

// BridgeType selects which ARM translation runtime to install.
type BridgeType string

const (
	BridgeTypeHoudini BridgeType = "houdini"
	BridgeTypeNdk     BridgeType = "ndk"
)

func BridgeTypes() []string {
	return []string{string(BridgeTypeHoudini), string(BridgeTypeNdk)}
}

const (
	SystemImageName = "system"
	VendorImageName = "vendor"

	containerImageExt = ".vhdx"
	rawImageExt       = ".img"
)

// Options holds the validated inputs for one installer run.
type Options struct {
	// WorkDir contains system.vhdx and vendor.vhdx, and receives all
	// intermediate files.
	WorkDir string
	// PayloadDir is the root of the runtime payload tree, with one
	// subdirectory per variant.
	PayloadDir string
	BridgeType BridgeType
	// PayloadVariant names which payload subtree to install.
	PayloadVariant string
	// VariantCatalogFile optionally overrides the built-in variant catalog.
	VariantCatalogFile string
	// ArchiveName, when set, triggers creation of <ArchiveName>.tar.gz of the
	// working directory after a successful run.
	ArchiveName string
	// PreservePlannedSize keeps the vendor image at its originally planned
	// target size on finalize, instead of shrinking to used + buffer.
	PreservePlannedSize bool
	// KeepRawImages skips deletion of the intermediate raw images.
	KeepRawImages bool
}

// VariantEntry declares a named payload variant and the translation layer
// type it is valid for.
type VariantEntry struct {
	Name   string     `yaml:"name"`
	Bridge BridgeType `yaml:"bridge"`
	// Subdir is the variant's directory under the payload root.
	Subdir string `yaml:"subdir"`
}

type VariantCatalog struct {
	Variants []VariantEntry `yaml:"variants"`
}

func defaultVariantCatalog() VariantCatalog {
	return VariantCatalog{
		Variants: []VariantEntry{
			{Name: "houdini", Bridge: BridgeTypeHoudini, Subdir: "houdini"},
			{Name: "houdini-legacy", Bridge: BridgeTypeHoudini, Subdir: "houdini_legacy"},
			{Name: "ndk", Bridge: BridgeTypeNdk, Subdir: "ndk_translation"},
			{Name: "ndk-canary", Bridge: BridgeTypeNdk, Subdir: "ndk_translation_canary"},
		},
	}
}

// LoadVariantCatalog reads a variant catalog from a YAML file.
func LoadVariantCatalog(path string) (VariantCatalog, error) {
	catalog := VariantCatalog{}

	content, err := file.Read(path)
	if err != nil {
		return catalog, fmt.Errorf("failed to load variant catalog:\n%w", err)
	}

	err = yaml.Unmarshal([]byte(content), &catalog)
	if err != nil {
		return catalog, fmt.Errorf("failed to parse variant catalog (%s):\n%w", path, err)
	}

	for _, variant := range catalog.Variants {
		if variant.Name == "" || variant.Subdir == "" {
			return catalog, fmt.Errorf("variant catalog (%s) has an entry with a missing name or subdir", path)
		}
		if variant.Bridge != BridgeTypeHoudini && variant.Bridge != BridgeTypeNdk {
			return catalog, fmt.Errorf("variant catalog (%s) entry (%s) has invalid bridge type (%s)",
				path, variant.Name, variant.Bridge)
		}
	}

	return catalog, nil
}

// IsValid checks the options and resolves the payload variant, before any
// filesystem state is touched.
func (o *Options) IsValid() (VariantEntry, error) {
	variant := VariantEntry{}

	if o.BridgeType != BridgeTypeHoudini && o.BridgeType != BridgeTypeNdk {
		return variant, fmt.Errorf("%w (type='%s')", ErrInvalidBridgeType, o.BridgeType)
	}

	workDirExists, err := file.DirExists(o.WorkDir)
	if err != nil {
		return variant, fmt.Errorf("%w (dir='%s'):\n%w", ErrInvalidWorkDir, o.WorkDir, err)
	}
	if !workDirExists {
		return variant, fmt.Errorf("%w (dir='%s')", ErrInvalidWorkDir, o.WorkDir)
	}

	payloadDirExists, err := file.DirExists(o.PayloadDir)
	if err != nil {
		return variant, fmt.Errorf("%w (dir='%s'):\n%w", ErrInvalidPayloadDir, o.PayloadDir, err)
	}
	if !payloadDirExists {
		return variant, fmt.Errorf("%w (dir='%s')", ErrInvalidPayloadDir, o.PayloadDir)
	}

	for _, imageName := range []string{SystemImageName, VendorImageName} {
		imagePath := o.ContainerImagePath(imageName)
		imageExists, err := file.IsFile(imagePath)
		if err != nil {
			return variant, fmt.Errorf("%w (image='%s'):\n%w", ErrMissingSourceImage, imagePath, err)
		}
		if !imageExists {
			return variant, fmt.Errorf("%w (image='%s')", ErrMissingSourceImage, imagePath)
		}
	}

	if o.ArchiveName != "" {
		// The archive name becomes a filename; restrict it to something safe.
		if !govalidator.Matches(o.ArchiveName, `^[A-Za-z0-9][A-Za-z0-9._-]*$`) {
			return variant, fmt.Errorf("%w (name='%s')", ErrInvalidArchiveName, o.ArchiveName)
		}
	}

	catalog := defaultVariantCatalog()
	if o.VariantCatalogFile != "" {
		catalog, err = LoadVariantCatalog(o.VariantCatalogFile)
		if err != nil {
			return variant, err
		}
	}

	found := false
	for _, entry := range catalog.Variants {
		if entry.Name == o.PayloadVariant {
			variant = entry
			found = true
			break
		}
	}
	if !found {
		return variant, fmt.Errorf("%w (variant='%s')", ErrUnknownPayloadVariant, o.PayloadVariant)
	}

	if variant.Bridge != o.BridgeType {
		return variant, fmt.Errorf("%w (variant='%s', type='%s')", ErrVariantTypeMismatch, o.PayloadVariant,
			o.BridgeType)
	}

	variantDir := filepath.Join(o.PayloadDir, variant.Subdir)
	variantDirExists, err := file.DirExists(variantDir)
	if err != nil {
		return variant, fmt.Errorf("%w (dir='%s'):\n%w", ErrInvalidPayloadDir, variantDir, err)
	}
	if !variantDirExists {
		return variant, fmt.Errorf("%w (dir='%s')", ErrInvalidPayloadDir, variantDir)
	}

	return variant, nil
}

// ContainerImagePath returns the path of a partition's vhdx file in the
// working directory.
func (o *Options) ContainerImagePath(imageName string) string {
	return filepath.Join(o.WorkDir, imageName+containerImageExt)
}

// RawImagePath returns the path of a partition's intermediate raw image.
func (o *Options) RawImagePath(imageName string) string {
	return filepath.Join(o.WorkDir, imageName+rawImageExt)
}
