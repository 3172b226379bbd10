// Package tarutils creates and expands tar.gz archives of working
// directories.

package tarutils

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/android-image-tools/nativebridge-installer/internal/logger"
	"github.com/klauspost/pgzip"
)

// CreateTarGzArchive archives the source directory. Compression runs through
// pgzip so large disk images compress on all cores.
func CreateTarGzArchive(sourceDir string, outputArchivePath string) error {
	logger.Log.Infof("Creating archive (%s) from (%s)", outputArchivePath, sourceDir)

	outFile, err := os.Create(outputArchivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive (%s):\n%w", outputArchivePath, err)
	}
	defer outFile.Close()

	gw := pgzip.NewWriter(outFile)
	defer gw.Close()

	tw := tar.NewWriter(gw)
	defer tw.Close()

	err = filepath.Walk(sourceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		// Don't archive the archive.
		absPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		absArchivePath, err := filepath.Abs(outputArchivePath)
		if err != nil {
			return err
		}
		if absPath == absArchivePath {
			return nil
		}

		linkTarget := ""
		if info.Mode().Type() == os.ModeSymlink {
			linkTarget, err = os.Readlink(path)
			if err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(info, linkTarget)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)

		err = tw.WriteHeader(header)
		if err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create archive (%s):\n%w", outputArchivePath, err)
	}

	return nil
}

// ExpandTarGzArchive expands the archive into the output directory.
func ExpandTarGzArchive(sourceArchivePath string, outputDir string) error {
	logger.Log.Infof("Expanding archive (%s) to (%s)", sourceArchivePath, outputDir)

	f, err := os.Open(sourceArchivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive (%s):\n%w", sourceArchivePath, err)
	}
	defer f.Close()

	gzr, err := pgzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader for (%s):\n%w", sourceArchivePath, err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read header from archive:\n%w", err)
		}

		// Reject entries that would escape the expansion root.
		cleanName := filepath.Clean(header.Name)
		if strings.Contains(cleanName, "..") || filepath.IsAbs(cleanName) {
			return fmt.Errorf("archive entry (%s) references a path outside the expansion root (%s)",
				header.Name, outputDir)
		}

		target := filepath.Join(outputDir, cleanName)

		switch header.Typeflag {
		case tar.TypeDir:
			err := os.MkdirAll(target, os.FileMode(header.Mode))
			if err != nil {
				return fmt.Errorf("failed to create directory (%s):\n%w", target, err)
			}

		case tar.TypeSymlink:
			err := os.MkdirAll(filepath.Dir(target), 0o755)
			if err != nil {
				return fmt.Errorf("failed to create parent directory for (%s):\n%w", target, err)
			}
			err = os.Symlink(header.Linkname, target)
			if err != nil {
				return fmt.Errorf("failed to create symlink (%s):\n%w", target, err)
			}

		case tar.TypeReg:
			err := os.MkdirAll(filepath.Dir(target), 0o755)
			if err != nil {
				return fmt.Errorf("failed to create parent directory for (%s):\n%w", target, err)
			}

			outFile, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(header.Mode))
			if err != nil {
				return fmt.Errorf("failed to create (%s):\n%w", target, err)
			}

			_, err = io.Copy(outFile, tr)
			if err != nil {
				outFile.Close()
				return fmt.Errorf("failed to copy (%s) from archive:\n%w", target, err)
			}

			err = outFile.Close()
			if err != nil {
				return fmt.Errorf("failed to finalize (%s):\n%w", target, err)
			}

		default:
			return fmt.Errorf("unsupported file type in archive (%s): %v", target, header.Typeflag)
		}
	}

	return nil
}
