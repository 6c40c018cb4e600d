package export

import (
	"encoding/csv"
	"io"

	"github.com/warp/stockbook/book"
)

// WriteCSV writes one view of snap as CSV with a header row.
func WriteCSV(w io.Writer, snap *book.Snapshot, view string) error {
	t, err := View(snap, view)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	record := make([]string, len(t.Header))
	for _, row := range t.Rows {
		for i, v := range row {
			record[i] = text(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
