package export

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/maltedev/storefront-auditor/internal/report"
)

// PrintTable renders t as a text table, header first.
func PrintTable(w io.Writer, t report.Table) error {
	table := tablewriter.NewWriter(w)
	table.Header(t.Columns)

	for i := range t.Rows {
		if err := table.Append(t.Strings(i)); err != nil {
			return fmt.Errorf("failed to append row %d: %w", i, err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
