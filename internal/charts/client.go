package charts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client renders charts through a QuickChart-compatible HTTP service. The
// service takes a Chart.js configuration and answers with a hosted PNG URL.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ Generator = (*Client)(nil)

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type chartRequest struct {
	Chart   map[string]any `json:"chart"`
	Width   int            `json:"width"`
	Height  int            `json:"height"`
	Format  string         `json:"format"`
	Version string         `json:"version"`
}

type chartResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

func (c *Client) PieChart(ctx context.Context, title string, labels []string, values []float64, colors []string) (Image, error) {
	cfg := map[string]any{
		"type": "pie",
		"data": map[string]any{
			"labels": labels,
			"datasets": []map[string]any{{
				"data":            values,
				"backgroundColor": colors,
			}},
		},
		"options": titleOptions(title),
	}
	return c.render(ctx, title, cfg)
}

func (c *Client) BarChart(ctx context.Context, title string, labels []string, series []Series) (Image, error) {
	cfg := map[string]any{
		"type":    "bar",
		"data":    seriesData(labels, series),
		"options": titleOptions(title),
	}
	return c.render(ctx, title, cfg)
}

func (c *Client) LineChart(ctx context.Context, title string, labels []string, series []Series) (Image, error) {
	cfg := map[string]any{
		"type":    "line",
		"data":    seriesData(labels, series),
		"options": titleOptions(title),
	}
	return c.render(ctx, title, cfg)
}

func (c *Client) render(ctx context.Context, title string, cfg map[string]any) (Image, error) {
	body, err := json.Marshal(chartRequest{
		Chart:   cfg,
		Width:   800,
		Height:  450,
		Format:  "png",
		Version: "4",
	})
	if err != nil {
		return Image{}, fmt.Errorf("marshal chart config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chart/create", bytes.NewReader(body))
	if err != nil {
		return Image{}, fmt.Errorf("build chart request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("call chart service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Image{}, fmt.Errorf("chart service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var parsed chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Image{}, fmt.Errorf("decode chart response: %w", err)
	}
	if !parsed.Success || parsed.URL == "" {
		return Image{}, fmt.Errorf("chart service did not return a url")
	}

	return Image{Title: title, MimeType: "image/png", URL: parsed.URL}, nil
}

func seriesData(labels []string, series []Series) map[string]any {
	datasets := make([]map[string]any, len(series))
	for i, s := range series {
		datasets[i] = map[string]any{
			"label": s.Name,
			"data":  s.Values,
		}
	}
	return map[string]any{
		"labels":   labels,
		"datasets": datasets,
	}
}

func titleOptions(title string) map[string]any {
	return map[string]any{
		"plugins": map[string]any{
			"title": map[string]any{
				"display": true,
				"text":    title,
			},
		},
	}
}
