package export

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"carbon-scribe/sequestration-backend/internal/sequestration"
)

// ChartOptions configures the CO2 time-series chart
type ChartOptions struct {
	Width     vg.Length
	Height    vg.Length
	LineColor color.Color
	BandColor color.Color
}

// DefaultChartOptions returns a 7x3.5 inch green chart
func DefaultChartOptions() ChartOptions {
	return ChartOptions{
		Width:     7 * vg.Inch,
		Height:    3.5 * vg.Inch,
		LineColor: color.RGBA{R: 46, G: 125, B: 50, A: 255},
		BandColor: color.RGBA{R: 165, G: 214, B: 167, A: 160},
	}
}

// RenderChart draws CO2 per hectare over time with the confidence interval
// as a shaded band, and returns it as PNG.
func RenderChart(report *sequestration.AggregateReport, opts ChartOptions) ([]byte, error) {
	if len(report.Points) == 0 {
		return nil, fmt.Errorf("no data points to chart")
	}

	p := plot.New()
	label := intervalLabel(report.Metadata)
	p.Title.Text = "CO2 equivalent (t/ha) with " + label + " confidence interval"
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "t CO2e / ha"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	p.Add(plotter.NewGrid())

	// Interval bounds are in biomass units; convert to CO2 alongside the median.
	toCO2 := report.Metadata.CarbonFraction * report.Metadata.CO2ConversionFactor
	if toCO2 == 0 {
		toCO2 = sequestration.CarbonFraction * sequestration.CO2ToCarbonRatio
	}

	line := make(plotter.XYs, len(report.Points))
	upper := make(plotter.XYs, len(report.Points))
	lower := make(plotter.XYs, len(report.Points))
	for i, pt := range report.Points {
		x := float64(pt.Date.Unix())
		line[i] = plotter.XY{X: x, Y: pt.CO2PerHa}
		upper[i] = plotter.XY{X: x, Y: pt.IntervalUpper * toCO2}
		lower[i] = plotter.XY{X: x, Y: pt.IntervalLower * toCO2}
	}

	if len(report.Points) > 1 {
		band := make(plotter.XYs, 0, 2*len(report.Points))
		band = append(band, upper...)
		for i := len(lower) - 1; i >= 0; i-- {
			band = append(band, lower[i])
		}
		poly, err := plotter.NewPolygon(band)
		if err != nil {
			return nil, fmt.Errorf("failed to build interval band: %w", err)
		}
		poly.Color = opts.BandColor
		poly.LineStyle.Width = 0
		p.Add(poly)
		p.Legend.Add(label+" interval", poly)
	}

	lpLine, lpPoints, err := plotter.NewLinePoints(line)
	if err != nil {
		return nil, fmt.Errorf("failed to build CO2 line: %w", err)
	}
	lpLine.Color = opts.LineColor
	lpLine.Width = vg.Points(1.5)
	lpPoints.Color = opts.LineColor
	p.Add(lpLine, lpPoints)
	p.Legend.Add("CO2e median", lpLine)
	p.Legend.Top = true

	writer, err := p.WriterTo(opts.Width, opts.Height, "png")
	if err != nil {
		return nil, fmt.Errorf("failed to create chart writer: %w", err)
	}

	var buf bytes.Buffer
	if _, err := writer.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// intervalLabel names the interval width, e.g. "95%" for the 2.5/97.5 pair
func intervalLabel(m sequestration.Methodology) string {
	lower, upper := m.IntervalPercentiles[0], m.IntervalPercentiles[1]
	if upper <= lower {
		return "confidence"
	}
	width := math.Round((upper-lower)*100) / 100
	return strconv.FormatFloat(width, 'f', -1, 64) + "%"
}
