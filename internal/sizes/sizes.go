// Package sizes compares the size options a listing offers against an
// expected catalog and across all listings of a run.
package sizes

import (
	"strings"
)

// MissingSizes returns the entries of expected that do not occur anywhere in
// the observed variant labels, in catalog order.
//
// Presence is a case-insensitive substring test against all variants joined
// with spaces, so labels such as "40x60 cm" or "Size: 40x60" still count as
// offering "40x60".
func MissingSizes(variants []string, expected []string) []string {
	missing := make([]string, 0)
	if len(expected) == 0 {
		return missing
	}

	blob := strings.ToLower(strings.Join(variants, " "))
	for _, size := range expected {
		if !strings.Contains(blob, strings.ToLower(size)) {
			missing = append(missing, size)
		}
	}

	return missing
}

// Catalog is the ordered list of size labels every listing should offer.
type Catalog []string

// ParseCatalog splits a comma separated list of size labels, dropping blanks.
func ParseCatalog(s string) Catalog {
	catalog := make(Catalog, 0)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			catalog = append(catalog, part)
		}
	}
	return catalog
}

// DefaultCatalog is the poster/print size range the auditor checks by default.
func DefaultCatalog() Catalog {
	return Catalog{"30x40", "40x60", "50x70", "20x30", "60x90"}
}

func (c Catalog) Missing(variants []string) []string {
	return MissingSizes(variants, c)
}

func (c Catalog) Contains(size string) bool {
	for _, s := range c {
		if s == size {
			return true
		}
	}
	return false
}
