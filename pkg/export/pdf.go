package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const pdfUsableWidth = 277.0 // A4 landscape minus margins, mm

// PDF renders the table as a landscape A4 document with evenly sized
// columns and alternating row shading.
func PDF(t Table) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	doc := gofpdf.New("L", "mm", "A4", "")
	doc.SetMargins(10, 12, 10)
	doc.SetAutoPageBreak(true, 14)
	doc.AddPage()

	if t.Title != "" {
		doc.SetFont("Helvetica", "B", 13)
		doc.CellFormat(0, 9, t.Title, "", 1, "L", false, 0, "")
		doc.Ln(3)
	}

	cellWidth := pdfUsableWidth / float64(len(t.Columns))

	doc.SetFont("Helvetica", "B", 9)
	doc.SetFillColor(230, 230, 230)
	for _, col := range t.Columns {
		doc.CellFormat(cellWidth, 7, col, "1", 0, "C", true, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Helvetica", "", 9)
	for i, row := range t.Rows {
		shaded := i%2 == 1
		if shaded {
			doc.SetFillColor(245, 245, 245)
		}
		for _, cell := range row {
			doc.CellFormat(cellWidth, 6, cell, "1", 0, "L", shaded, 0, "")
		}
		doc.Ln(-1)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("encode pdf: %w", err)
	}
	return buf.Bytes(), nil
}
