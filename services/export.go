package services

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"docatlas/internal/faults"
	"docatlas/models"
)

const exportSheet = "Documents"

// ExportDocumentsXLSX renders the document inventory as a spreadsheet for
// operators auditing the knowledge base.
func ExportDocumentsXLSX(docs []models.DocumentSummary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", exportSheet)

	headers := []string{"ID", "Filename", "Status", "Chunks", "Source", "Generation", "Processed Artefact", "Error", "Created"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, faults.Wrap(faults.Fatal, "services.ExportDocumentsXLSX", err)
		}
	}

	for row, d := range docs {
		processed := ""
		if d.ProcessedGCS != nil {
			processed = *d.ProcessedGCS
		}
		errMsg := ""
		if d.ErrorMessage != nil {
			errMsg = *d.ErrorMessage
		}
		values := []interface{}{
			d.ID.String(),
			d.Filename,
			string(d.Status),
			d.ChunkCount,
			d.OriginalGCS,
			d.GCSGeneration,
			processed,
			errMsg,
			d.CreatedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				return nil, faults.Wrap(faults.Fatal, "services.ExportDocumentsXLSX", err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, faults.Wrap(faults.Fatal, "services.ExportDocumentsXLSX", err)
	}
	return buf.Bytes(), nil
}

// ExportFilename is the attachment name for a documents export.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("documents-%s.xlsx", now.Format("2006-01-02"))
}
