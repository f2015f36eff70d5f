package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSV renders the table as RFC 4180 CSV with a header row. The title
// is not part of the output; CSV consumers name the file instead.
func CSV(t Table) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(append([][]string{t.Columns}, t.Rows...)); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}
