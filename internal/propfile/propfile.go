// Package propfile reads and edits Android build-property files
// (key=value lines, '#' comments). Edits preserve the file's layout:
// untouched lines, comments, and ordering are written back byte-for-byte.

package propfile

import (
	"fmt"
	"strings"

	"github.com/android-image-tools/nativebridge-installer/internal/file"
)

type PropertyFile struct {
	lines []string
	// True if the file ended with a trailing newline.
	trailingNewline bool
}

// LoadPropertyFile reads a property file from disk.
func LoadPropertyFile(path string) (*PropertyFile, error) {
	content, err := file.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load property file:\n%w", err)
	}
	return ParseProperties(content), nil
}

// ParseProperties parses property-file content.
func ParseProperties(content string) *PropertyFile {
	trailingNewline := strings.HasSuffix(content, "\n")
	trimmed := strings.TrimSuffix(content, "\n")

	lines := []string(nil)
	if trimmed != "" || trailingNewline {
		lines = strings.Split(trimmed, "\n")
	}

	return &PropertyFile{
		lines:           lines,
		trailingNewline: trailingNewline,
	}
}

// Get returns the value of the property, if present.
func (p *PropertyFile) Get(key string) (string, bool) {
	index := p.keyIndex(key)
	if index < 0 {
		return "", false
	}

	_, value := splitPropertyLine(p.lines[index])
	return value, true
}

// SetValue replaces the value of an existing property in place. Returns
// false if the key is not present.
func (p *PropertyFile) SetValue(key string, value string) bool {
	index := p.keyIndex(key)
	if index < 0 {
		return false
	}

	p.lines[index] = key + "=" + value
	return true
}

// InsertAfter inserts property lines immediately after the line holding the
// given key, skipping any line that is already present anywhere in the file.
// Returns the number of lines inserted, or -1 if the key is not present.
func (p *PropertyFile) InsertAfter(key string, newLines []string) int {
	index := p.keyIndex(key)
	if index < 0 {
		return -1
	}

	missing := []string(nil)
	for _, newLine := range newLines {
		newKey, _ := splitPropertyLine(newLine)
		if newKey == "" || p.keyIndex(newKey) < 0 {
			missing = append(missing, newLine)
		}
	}
	if len(missing) == 0 {
		return 0
	}

	updated := make([]string, 0, len(p.lines)+len(missing))
	updated = append(updated, p.lines[:index+1]...)
	updated = append(updated, missing...)
	updated = append(updated, p.lines[index+1:]...)
	p.lines = updated

	return len(missing)
}

// Content renders the file back to a string.
func (p *PropertyFile) Content() string {
	content := strings.Join(p.lines, "\n")
	if p.trailingNewline && content != "" {
		content += "\n"
	}
	return content
}

// Save writes the file back to disk.
func (p *PropertyFile) Save(path string) error {
	err := file.Write(p.Content(), path)
	if err != nil {
		return fmt.Errorf("failed to save property file:\n%w", err)
	}
	return nil
}

func (p *PropertyFile) keyIndex(key string) int {
	for i, line := range p.lines {
		lineKey, _ := splitPropertyLine(line)
		if lineKey == key {
			return i
		}
	}
	return -1
}

func splitPropertyLine(line string) (key string, value string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", ""
	}

	eqIndex := strings.Index(trimmed, "=")
	if eqIndex < 0 {
		return "", ""
	}

	return trimmed[:eqIndex], trimmed[eqIndex+1:]
}
