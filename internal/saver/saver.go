// Package saver exports the displayed view to files.
package saver

import (
	"fmt"
	"path/filepath"
	"strings"

	"TickerLens/internal/model"
)

// ViewSaver writes rows to path in one file format.
type ViewSaver interface {
	Save(rows []Row, path string) error
	Extension() string
}

// NewViewSaver creates the implementation for format (csv, parquet, json).
// Returns nil if format is not supported.
func NewViewSaver(format string) ViewSaver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}
	case "parquet":
		return ParquetSaver{}
	case "json":
		return JSONSaver{}
	default:
		return nil
	}
}

// Export writes the visible rows of v to path. When format is empty it is
// taken from path's extension; a missing extension is appended.
func Export(v model.ViewState, format, path string) (string, int, error) {
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	s := NewViewSaver(format)
	if s == nil {
		return "", 0, fmt.Errorf("saver: unsupported format %q (use: csv, parquet, json)", format)
	}
	if filepath.Ext(path) == "" {
		path += "." + s.Extension()
	}
	rows := Rows(v)
	if err := s.Save(rows, path); err != nil {
		return "", 0, fmt.Errorf("export %s: %w", path, err)
	}
	return path, len(rows), nil
}
