package charts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPieChartPostsConfigAndReturnsURL(t *testing.T) {
	var got chartRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chart/create" {
			t.Errorf("path = %q, want /chart/create", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(chartResponse{Success: true, URL: "https://charts.example/abc.png"})
	}))
	defer srv.Close()

	img, err := NewClient(srv.URL).PieChart(context.Background(), "march expenses",
		[]string{"dining", "transport"}, []float64{60, 40}, []string{"#BF616A", "#D08770"})
	if err != nil {
		t.Fatalf("PieChart: %v", err)
	}

	if img.URL != "https://charts.example/abc.png" {
		t.Errorf("URL = %q", img.URL)
	}
	if img.MimeType != "image/png" {
		t.Errorf("MimeType = %q", img.MimeType)
	}
	if img.Title != "march expenses" {
		t.Errorf("Title = %q", img.Title)
	}
	if got.Chart["type"] != "pie" {
		t.Errorf("chart type = %v", got.Chart["type"])
	}
	if got.Format != "png" {
		t.Errorf("format = %q", got.Format)
	}
}

func TestRenderErrorPaths(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "success false",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(chartResponse{Success: false})
			},
		},
		{
			name: "empty url",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(chartResponse{Success: true, URL: ""})
			},
		},
		{
			name: "invalid body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not json"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := NewClient(srv.URL).BarChart(context.Background(), "t",
				[]string{"a"}, []Series{{Name: "s", Values: []float64{1}}})
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLineChartSeriesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Chart["type"] != "line" {
			t.Errorf("chart type = %v", req.Chart["type"])
		}
		data := req.Chart["data"].(map[string]any)
		datasets := data["datasets"].([]any)
		if len(datasets) != 2 {
			t.Errorf("datasets = %d, want 2", len(datasets))
		}
		json.NewEncoder(w).Encode(chartResponse{Success: true, URL: "https://charts.example/l.png"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).LineChart(context.Background(), "timeline",
		[]string{"W01", "W02"}, []Series{
			{Name: "2024-03", Values: []float64{10, 20}},
			{Name: "2024-02", Values: []float64{5, 15}},
		})
	if err != nil {
		t.Fatalf("LineChart: %v", err)
	}
}
