// Package files is the local file input boundary: loading user-selected
// documents, detecting their format, and fetching the bundled sample
// documents. Files are carried as bytes; parsing and indexing happen remotely.
package files

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Format enumerates supported document payload formats.
type Format string

const (
	// FormatUnknown represents an unsupported or undetected format.
	FormatUnknown Format = ""
	// FormatPDF represents PDF documents.
	FormatPDF Format = "pdf"
	// FormatMarkdown represents Markdown documents.
	FormatMarkdown Format = "markdown"
	// FormatText represents plain-text documents.
	FormatText Format = "text"
)

// InputFile is one document ready for upload, the same representation whether
// it came from disk, a drag-drop request, or a sample fetch.
type InputFile struct {
	Name   string
	Data   []byte
	Format Format
}

// DetectFormat infers a document format from the provided path's extension.
func DetectFormat(path string) Format {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return FormatPDF
	case ".md", ".markdown":
		return FormatMarkdown
	case ".txt", ".text":
		return FormatText
	default:
		return FormatUnknown
	}
}

// New validates raw bytes under the given name and wraps them as an InputFile.
func New(name string, data []byte) (InputFile, error) {
	format := DetectFormat(name)
	if format == FormatUnknown {
		return InputFile{}, fmt.Errorf("%s: unsupported file type (want pdf, markdown, or plain text)", name)
	}
	if len(data) == 0 {
		return InputFile{}, fmt.Errorf("%s: file is empty", name)
	}
	if format == FormatPDF {
		if err := validatePDF(data); err != nil {
			return InputFile{}, fmt.Errorf("%s: %w", name, err)
		}
	}
	return InputFile{Name: filepath.Base(name), Data: data, Format: format}, nil
}

// Load reads one document from disk.
func Load(path string) (InputFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return InputFile{}, fmt.Errorf("read file: %w", err)
	}
	return New(path, data)
}

// LoadDir walks dir and loads every supported document, sorted by path so
// upload order is stable.
func LoadDir(dir string) ([]InputFile, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("data directory: %w", err)
	}

	paths := make([]string, 0)
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if DetectFormat(d.Name()) != FormatUnknown {
			paths = append(paths, path)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("walk data directory: %w", err)
	}
	sort.Strings(paths)

	loaded := make([]InputFile, 0, len(paths))
	for _, path := range paths {
		file, err := Load(path)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, file)
	}
	return loaded, nil
}
