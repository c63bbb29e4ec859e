package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"carbon-scribe/sequestration-backend/internal/sequestration"
)

// Format is an export file format
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "xlsx"
	FormatPDF   Format = "pdf"
)

// ParseFormat accepts csv, xlsx (or excel) and pdf
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv", "":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatExcel, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type for the format
func (f Format) ContentType() string {
	switch f {
	case FormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv"
	}
}

// Document is an estimate report with the context needed to title it
type Document struct {
	FarmName    string
	AreaHa      float64
	Report      *sequestration.AggregateReport
	GeneratedAt time.Time
}

// Artifact is a rendered export
type Artifact struct {
	Data        []byte
	ContentType string
	Extension   string
	Filename    string
}

// Render produces doc in the requested format
func Render(doc Document, format Format) (*Artifact, error) {
	if doc.Report == nil {
		return nil, fmt.Errorf("no report to export")
	}
	if doc.GeneratedAt.IsZero() {
		doc.GeneratedAt = time.Now().UTC()
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case FormatCSV:
		data, err = renderCSV(doc)
	case FormatExcel:
		data, err = renderExcel(doc)
	case FormatPDF:
		data, err = renderPDF(doc)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to render %s export: %w", format, err)
	}

	return &Artifact{
		Data:        data,
		ContentType: format.ContentType(),
		Extension:   string(format),
		Filename:    Filename(doc, format),
	}, nil
}

// Filename builds carbon_report_<farm>_<start>_<end>.<ext>
func Filename(doc Document, format Format) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, doc.FarmName)
	if name == "" {
		name = "farm"
	}
	return fmt.Sprintf("carbon_report_%s_%s_%s.%s", name,
		doc.Report.StartDate.Format(sequestration.DateLayout),
		doc.Report.EndDate.Format(sequestration.DateLayout),
		format)
}

// estimateColumns are the per-point export columns, in order
var estimateColumns = []string{
	"date", "ndvi", "agb_tonnes_ha", "carbon_tonnes_ha", "co2_tonnes_ha",
	"confidence_score", "ci_lower", "ci_upper", "std_dev",
}

var estimateLabels = []string{
	"Date", "NDVI", "AGB (t/ha)", "Carbon (t/ha)", "CO2 (t/ha)",
	"Confidence", "CI Lower", "CI Upper", "Std Dev",
}

func estimateRows(report *sequestration.AggregateReport) []map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(report.Points))
	for _, p := range report.Points {
		rows = append(rows, map[string]interface{}{
			"date":             p.Date,
			"ndvi":             p.IndexValue,
			"agb_tonnes_ha":    p.BiomassPerHa,
			"carbon_tonnes_ha": p.CarbonPerHa,
			"co2_tonnes_ha":    p.CO2PerHa,
			"confidence_score": p.ConfidenceScore,
			"ci_lower":         p.IntervalLower,
			"ci_upper":         p.IntervalUpper,
			"std_dev":          p.StdDev,
		})
	}
	return rows
}

// summaryItem is one labelled value of the summary block
type summaryItem struct {
	Label string
	Value interface{}
}

func summaryItems(doc Document) []summaryItem {
	r := doc.Report
	s := r.Stats
	return []summaryItem{
		{"Farm", doc.FarmName},
		{"Area (ha)", r.AreaHa},
		{"Period", r.StartDate.Format(sequestration.DateLayout) + " to " + r.EndDate.Format(sequestration.DateLayout)},
		{"Data points", s.PointCount},
		{"Mean AGB (t/ha)", s.MeanBiomassPerHa},
		{"Total AGB (t)", s.TotalBiomass},
		{"Mean carbon (t/ha)", s.MeanCarbonPerHa},
		{"Total carbon (t)", s.TotalCarbon},
		{"Total CO2e (t)", s.TotalCO2},
		{"NDVI min / mean / max", fmt.Sprintf("%.3f / %.3f / %.3f", s.MinIndex, s.MeanIndex, s.MaxIndex)},
		{"Mean confidence score", s.MeanConfidenceScore},
		{"Mean std dev (t/ha)", s.MeanStdDev},
	}
}

func methodologyItems(m sequestration.Methodology) []summaryItem {
	return []summaryItem{
		{"Model", fmt.Sprintf("%s %s", m.ModelName, m.ModelVersion)},
		{"Tier", m.Tier},
		{"Land-use class", m.ResolvedClassLabel()},
		{"Uncertainty", fmt.Sprintf("%s, %d iterations, %.1f-%.1f percentile interval", m.UncertaintyMethod, m.Iterations, m.IntervalPercentiles[0], m.IntervalPercentiles[1])},
		{"Coefficients", fmt.Sprintf("a = %.2f +/- %.2f, b = %.3f +/- %.3f", m.Parameters.CoefficientMean, m.Parameters.CoefficientStd, m.Parameters.ExponentMean, m.Parameters.ExponentStd)},
	}
}

func renderCSV(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	exporter := NewCSVExporter(&buf, DefaultCSVOptions())
	if err := exporter.WriteEstimates(doc.Report); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderExcel(doc Document) ([]byte, error) {
	exporter := NewMultiSheetExporter(DefaultExcelOptions())
	defer exporter.Close()

	if err := exporter.AddSheet("Carbon Estimates", estimateColumns, estimateLabels, estimateRows(doc.Report)); err != nil {
		return nil, err
	}

	summary := make([]map[string]interface{}, 0)
	for _, item := range append(summaryItems(doc), methodologyItems(doc.Report.Metadata)...) {
		summary = append(summary, map[string]interface{}{"metric": item.Label, "value": item.Value})
	}
	if err := exporter.AddSheet("Summary", []string{"metric", "value"}, []string{"Metric", "Value"}, summary); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := exporter.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderPDF(doc Document) ([]byte, error) {
	options := DefaultPDFOptions()
	options.Title = "Carbon Sequestration Report"
	options.Subtitle = fmt.Sprintf("%s (%.2f ha)", doc.FarmName, doc.Report.AreaHa)

	chart, err := RenderChart(doc.Report, DefaultChartOptions())
	if err != nil {
		return nil, err
	}

	gen := NewPDFGenerator(options)
	if err := gen.GenerateEstimateReport(doc, chart); err != nil {
		return nil, err
	}
	return gen.OutputToBytes()
}
