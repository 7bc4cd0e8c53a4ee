package bulksync

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// TemplateSheet names the worksheet of the blank upload template.
const TemplateSheet = "Productos"

// WriteTemplate writes an empty workbook whose header row carries every canonical column.
func WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", TemplateSheet); err != nil {
		return fmt.Errorf("bulksync: template: %w", err)
	}
	header := make([]interface{}, len(CanonicalColumns))
	for i, c := range CanonicalColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(TemplateSheet, "A1", &header); err != nil {
		return fmt.Errorf("bulksync: template: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9E1F2"}},
	})
	if err != nil {
		return fmt.Errorf("bulksync: template: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(CanonicalColumns), 1)
	if err != nil {
		return fmt.Errorf("bulksync: template: %w", err)
	}
	if err := f.SetCellStyle(TemplateSheet, "A1", last, style); err != nil {
		return fmt.Errorf("bulksync: template: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(CanonicalColumns))
	if err := f.SetColWidth(TemplateSheet, "A", lastCol, 18); err != nil {
		return fmt.Errorf("bulksync: template: %w", err)
	}
	if err := f.SetPanes(TemplateSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("bulksync: template: %w", err)
	}
	_, err = f.WriteTo(w)
	return err
}
