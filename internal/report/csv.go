package report

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes the table as semicolon separated values with comma
// decimal marks, the layout French spreadsheet software opens directly.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	for _, rec := range t.Records(Plain) {
		line := make([]string, len(rec))
		for i, v := range rec {
			line[i] = fmt.Sprint(v)
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
