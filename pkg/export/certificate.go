package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// RenderCertificate produces a provenance certificate PDF for a project chain.
// Each block is printed with its hash linkage; the footer carries the chain
// head hash so a printed certificate can be checked against the live ledger.
func RenderCertificate(doc ChainDocument) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	title := doc.ProjectName
	if title == "" {
		title = doc.ProjectID
	}
	pdf.CellFormat(0, 10, strings.ToUpper("Material Provenance Certificate"), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 8, title, "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s", doc.GeneratedAt), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	headers := []string{"#", "Timestamp", "Status", "Verified By", "Weight (g)", "Hash"}
	widths := []float64{10, 38, 25, 35, 24, 58}

	pdf.SetFont("Arial", "B", 9)
	for i, header := range headers {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Courier", "", 8)
	for _, row := range doc.Rows {
		hash := row.BlockHash
		if len(hash) > 24 {
			hash = hash[:24] + "..."
		}
		if !row.Valid {
			hash = "INVALID " + hash
		}
		cells := []string{
			fmt.Sprintf("%d", row.Index),
			row.Timestamp,
			row.Status,
			row.VerifiedBy,
			fmt.Sprintf("%.1f", row.WeightGrams),
			hash,
		}
		for i, cell := range cells {
			pdf.CellFormat(widths[i], 7, cell, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if n := len(doc.Rows); n > 0 {
		pdf.Ln(5)
		pdf.SetFont("Courier", "B", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Chain head: %s", doc.Rows[n-1].BlockHash), "", 1, "L", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
