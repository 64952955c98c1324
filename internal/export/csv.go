package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/maltedev/storefront-auditor/internal/report"
)

// WriteCSV writes a single table with a header line.
func WriteCSV(t report.Table, w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(t.Columns); err != nil {
		return err
	}

	for i := range t.Rows {
		if err := writer.Write(t.Strings(i)); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// SaveCSVDir writes one <table>.csv file per report table into dir and
// returns the written paths.
func SaveCSVDir(r *report.Report, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create csv dir: %w", err)
	}

	paths := make([]string, 0, len(r.Tables))
	for _, t := range r.Tables {
		path := filepath.Join(dir, FileName(t.Name)+".csv")

		file, err := os.Create(path)
		if err != nil {
			return paths, fmt.Errorf("failed to create %s: %w", path, err)
		}

		if err := WriteCSV(t, file); err != nil {
			file.Close()
			return paths, fmt.Errorf("failed to write %s: %w", path, err)
		}
		if err := file.Close(); err != nil {
			return paths, err
		}

		paths = append(paths, path)
	}

	return paths, nil
}

// FileName turns a sheet name into a lower-case file name.
func FileName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
