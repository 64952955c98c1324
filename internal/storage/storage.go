package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/maltedev/storefront-auditor/internal/models"
	"github.com/maltedev/storefront-auditor/internal/report"
)

// ErrInvalidDump wraps report.ErrInvalidCollection for dumps that are not a
// list of product records.
var ErrInvalidDump = errors.New("invalid product dump")

// DumpStorage keeps the annotated product collection of a run as an indented
// JSON array on disk.
type DumpStorage struct {
	mu       sync.RWMutex
	filename string
}

func NewDumpStorage(filename string) *DumpStorage {
	return &DumpStorage{filename: filename}
}

func (s *DumpStorage) Path() string {
	return s.filename
}

func (s *DumpStorage) Exists() bool {
	_, err := os.Stat(s.filename)
	return err == nil
}

// Save replaces the dump with products.
func (s *DumpStorage) Save(products []models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if products == nil {
		products = []models.Product{}
	}

	data, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode products: %w", err)
	}

	if dir := filepath.Dir(s.filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create dump directory: %w", err)
		}
	}

	// Write to temp file first for atomicity
	tmpFile := s.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write dump: %w", err)
	}

	if err := os.Rename(tmpFile, s.filename); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to replace dump: %w", err)
	}

	return nil
}

// Load reads the dump back. A dump that is not a JSON array of objects
// returns an error matching both ErrInvalidDump and
// report.ErrInvalidCollection.
func (s *DumpStorage) Load() ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.filename)
	if err != nil {
		return nil, err
	}

	products, err := report.DecodeProducts(data)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrInvalidDump, s.filename, err)
	}

	return products, nil
}

// Stats counts products by the audit findings that matter for triage.
func Stats(products []models.Product) map[string]int {
	stats := map[string]int{
		"total":              len(products),
		"with_mockups":       0,
		"with_missing_sizes": 0,
		"without_images":     0,
	}
	for _, p := range products {
		if p.MockupCount() > 0 {
			stats["with_mockups"]++
		}
		if len(p.MissingSizes) > 0 {
			stats["with_missing_sizes"]++
		}
		if p.ImageCount() == 0 {
			stats["without_images"]++
		}
	}
	return stats
}
