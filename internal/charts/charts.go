// Package charts renders report charts through an external chart service
// and returns hosted image URLs. Chart failures are never fatal to the
// report that requested them.
package charts

import "context"

// Image is a rendered chart hosted by the chart service.
type Image struct {
	Title    string `json:"title"`
	MimeType string `json:"mime_type"`
	URL      string `json:"url"`
}

// Series is one named value row of a bar or line chart.
type Series struct {
	Name   string
	Values []float64
}

// Generator renders charts for the reporting layer.
type Generator interface {
	PieChart(ctx context.Context, title string, labels []string, values []float64, colors []string) (Image, error)
	BarChart(ctx context.Context, title string, labels []string, series []Series) (Image, error)
	LineChart(ctx context.Context, title string, labels []string, series []Series) (Image, error)
}
