// Package textedit performs anchored line edits on text configuration
// files. Every file edit writes a `.backup` sibling of the original first.

package textedit

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/android-image-tools/nativebridge-installer/internal/file"
	"github.com/android-image-tools/nativebridge-installer/internal/logger"
)

const BackupSuffix = ".backup"

// Transform rewrites a file's lines and reports how many edits it made.
type Transform func(lines []string) (updated []string, editCount int)

// InsertAfter returns a transform that inserts the given lines after every
// line matching the anchor pattern. An insertion is skipped when the lines
// already immediately follow the anchor, so re-running the transform against
// an already-patched file is a no-op.
func InsertAfter(anchor *regexp.Regexp, insertLines []string) Transform {
	return func(lines []string) ([]string, int) {
		updated := []string(nil)
		editCount := 0

		for i := 0; i < len(lines); i++ {
			updated = append(updated, lines[i])

			if !anchor.MatchString(lines[i]) {
				continue
			}

			if linesFollow(lines, i+1, insertLines) {
				continue
			}

			updated = append(updated, insertLines...)
			editCount++
		}

		return updated, editCount
	}
}

// DeleteMatching returns a transform that removes every line matching the
// pattern.
func DeleteMatching(pattern *regexp.Regexp) Transform {
	return func(lines []string) ([]string, int) {
		updated := []string(nil)
		editCount := 0

		for _, line := range lines {
			if pattern.MatchString(line) {
				editCount++
				continue
			}
			updated = append(updated, line)
		}

		return updated, editCount
	}
}

// PatchFile applies the transform to the file in place, writing a backup of
// the original first. Returns the total number of edits made. The backup is
// only written when an edit will actually happen, and an existing backup is
// never overwritten so the pristine original survives repeated runs.
func PatchFile(path string, transforms ...Transform) (int, error) {
	content, err := file.Read(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read file to patch:\n%w", err)
	}

	trailingNewline := strings.HasSuffix(content, "\n")
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")

	totalEdits := 0
	for _, transform := range transforms {
		edits := 0
		lines, edits = transform(lines)
		totalEdits += edits
	}

	if totalEdits == 0 {
		logger.Log.Debugf("No edits needed for (%s)", path)
		return 0, nil
	}

	err = BackupFile(path)
	if err != nil {
		return 0, err
	}

	updated := strings.Join(lines, "\n")
	if trailingNewline {
		updated += "\n"
	}

	err = file.Write(updated, path)
	if err != nil {
		return 0, fmt.Errorf("failed to write patched file:\n%w", err)
	}

	return totalEdits, nil
}

// BackupFile copies the file to `path + ".backup"` unless a backup already
// exists.
func BackupFile(path string) error {
	backupPath := path + BackupSuffix

	backupExists, err := file.PathExists(backupPath)
	if err != nil {
		return fmt.Errorf("failed to check for existing backup (%s):\n%w", backupPath, err)
	}
	if backupExists {
		logger.Log.Debugf("Backup already exists (%s)", backupPath)
		return nil
	}

	err = file.Copy(path, backupPath)
	if err != nil {
		return fmt.Errorf("failed to back up (%s):\n%w", path, err)
	}
	return nil
}

func linesFollow(lines []string, start int, expected []string) bool {
	if start+len(expected) > len(lines) {
		return false
	}
	for i, expectedLine := range expected {
		if lines[start+i] != expectedLine {
			return false
		}
	}
	return true
}
