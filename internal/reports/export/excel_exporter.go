package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExcelOptions configures Excel export behavior
type ExcelOptions struct {
	FreezeHeader bool              `json:"freeze_header"`
	AutoFilter   bool              `json:"auto_filter"`
	NumberFormat string            `json:"number_format"`
	DateFormat   string            `json:"date_format"`
	HeaderStyle  *ExcelStyleConfig `json:"header_style,omitempty"`
	DataStyle    *ExcelStyleConfig `json:"data_style,omitempty"`
	AutoWidth    bool              `json:"auto_width"`
}

// ExcelStyleConfig defines style for cells
type ExcelStyleConfig struct {
	FontBold  bool   `json:"font_bold"`
	FontSize  int    `json:"font_size"`
	FontColor string `json:"font_color"`
	FillColor string `json:"fill_color"`
	Alignment string `json:"alignment"` // left, center, right
	Border    bool   `json:"border"`
}

// DefaultExcelOptions returns default Excel export options
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		FreezeHeader: true,
		AutoFilter:   true,
		NumberFormat: "#,##0.0000",
		DateFormat:   "yyyy-mm-dd",
		AutoWidth:    true,
		HeaderStyle: &ExcelStyleConfig{
			FontBold:  true,
			FontSize:  11,
			FillColor: "2E7D32",
			FontColor: "FFFFFF",
			Alignment: "center",
			Border:    true,
		},
		DataStyle: &ExcelStyleConfig{
			FontSize: 11,
			Border:   true,
		},
	}
}

// MultiSheetExporter builds a workbook with one sheet per table
type MultiSheetExporter struct {
	file    *excelize.File
	options ExcelOptions
	sheets  int
}

// NewMultiSheetExporter creates a multi-sheet Excel exporter
func NewMultiSheetExporter(options ExcelOptions) *MultiSheetExporter {
	return &MultiSheetExporter{
		file:    excelize.NewFile(),
		options: options,
	}
}

// AddSheet writes a styled header and the rows to a new sheet
func (e *MultiSheetExporter) AddSheet(name string, columns, labels []string, rows []map[string]interface{}) error {
	// The first sheet reuses the default "Sheet1"
	if e.sheets == 0 {
		if err := e.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("failed to rename sheet: %w", err)
		}
	} else if _, err := e.file.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	e.sheets++

	if err := e.writeHeader(name, labels); err != nil {
		return err
	}
	return e.writeRows(name, columns, rows)
}

func (e *MultiSheetExporter) writeHeader(sheet string, labels []string) error {
	headerStyleID := 0
	if e.options.HeaderStyle != nil {
		style, err := e.createStyle(e.options.HeaderStyle, nil)
		if err != nil {
			return fmt.Errorf("failed to create header style: %w", err)
		}
		headerStyleID = style
	}

	for i, label := range labels {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := e.file.SetCellValue(sheet, cell, label); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if headerStyleID > 0 {
			e.file.SetCellStyle(sheet, cell, cell, headerStyleID)
		}
	}

	if e.options.FreezeHeader {
		e.file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
	}
	return nil
}

func (e *MultiSheetExporter) writeRows(sheet string, columns []string, rows []map[string]interface{}) error {
	var textStyle, numberStyle, dateStyle int
	if e.options.DataStyle != nil {
		var err error
		if textStyle, err = e.createStyle(e.options.DataStyle, nil); err != nil {
			return fmt.Errorf("failed to create data style: %w", err)
		}
		if numberStyle, err = e.createStyle(e.options.DataStyle, &e.options.NumberFormat); err != nil {
			return fmt.Errorf("failed to create number style: %w", err)
		}
		if dateStyle, err = e.createStyle(e.options.DataStyle, &e.options.DateFormat); err != nil {
			return fmt.Errorf("failed to create date style: %w", err)
		}
	}

	columnWidths := make(map[int]float64)
	for i, col := range columns {
		columnWidths[i] = float64(len(col)) * 1.2
	}

	for rowIdx, row := range rows {
		for colIdx, col := range columns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			val := row[col]

			if err := e.file.SetCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("failed to set cell value: %w", err)
			}

			style := textStyle
			switch val.(type) {
			case float64, int:
				style = numberStyle
			case time.Time:
				style = dateStyle
			}
			if style > 0 {
				e.file.SetCellStyle(sheet, cell, cell, style)
			}

			if width := float64(len(fmt.Sprintf("%v", val))) * 1.2; width > columnWidths[colIdx] {
				columnWidths[colIdx] = width
			}
		}
	}

	if e.options.AutoFilter && len(rows) > 0 {
		lastCol, _ := excelize.CoordinatesToCellName(len(columns), len(rows)+1)
		e.file.AutoFilter(sheet, "A1:"+lastCol, nil)
	}

	if e.options.AutoWidth {
		for colIdx, width := range columnWidths {
			colName, _ := excelize.ColumnNumberToName(colIdx + 1)
			// Min width 10, max width 50
			width = max(10, min(width, 50))
			e.file.SetColWidth(sheet, colName, colName, width)
		}
	}

	return nil
}

func (e *MultiSheetExporter) createStyle(config *ExcelStyleConfig, numFmt *string) (int, error) {
	style := &excelize.Style{
		Font: &excelize.Font{
			Bold:  config.FontBold,
			Size:  float64(config.FontSize),
			Color: config.FontColor,
		},
		CustomNumFmt: numFmt,
	}

	if config.FillColor != "" {
		style.Fill = excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{config.FillColor},
		}
	}

	if config.Alignment != "" {
		style.Alignment = &excelize.Alignment{Horizontal: config.Alignment}
	}

	if config.Border {
		style.Border = []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		}
	}

	return e.file.NewStyle(style)
}

// WriteTo writes the workbook to a writer
func (e *MultiSheetExporter) WriteTo(w io.Writer) error {
	return e.file.Write(w)
}

// Close closes the workbook
func (e *MultiSheetExporter) Close() error {
	return e.file.Close()
}
