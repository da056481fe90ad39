package http

import (
	"fmt"
	"net/http"
	"time"

	"tally/internal/charts"
	"tally/internal/core"
	"tally/internal/services"
)

type categoryResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color"`
	Kind        string `json:"kind"`
}

type billResponse struct {
	ID            int64    `json:"id"`
	Amount        float64  `json:"amount"`
	Kind          string   `json:"kind"`
	Description   string   `json:"description,omitempty"`
	CategoryID    *int64   `json:"category_id,omitempty"`
	Category      string   `json:"category"`
	SourceAssetID *int64   `json:"source_asset_id,omitempty"`
	TargetAssetID *int64   `json:"target_asset_id,omitempty"`
	SourceAmount  *float64 `json:"source_amount,omitempty"`
	TargetAmount  *float64 `json:"target_amount,omitempty"`
	CreatedAt     string   `json:"created_at"`
}

type breakdownResponse struct {
	CategoryID *int64  `json:"category_id,omitempty"`
	Category   string  `json:"category"`
	Color      string  `json:"color,omitempty"`
	Total      float64 `json:"total"`
	Percentage float64 `json:"percentage"`
}

type snapshotResponse struct {
	Period    string              `json:"period"`
	Reference string              `json:"reference"`
	Label     string              `json:"label"`
	Start     string              `json:"start"`
	End       string              `json:"end"`
	Total     float64             `json:"total"`
	Breakdown []breakdownResponse `json:"breakdown"`
}

type bucketResponse struct {
	Label        string  `json:"label"`
	DisplayLabel string  `json:"display_label"`
	Start        string  `json:"start"`
	End          string  `json:"end"`
	Total        float64 `json:"total"`
}

type seriesResponse struct {
	Reference string           `json:"reference"`
	Label     string           `json:"label"`
	Total     float64          `json:"total"`
	Buckets   []bucketResponse `json:"buckets"`
}

type batchItemResponse struct {
	Index int           `json:"index"`
	Bill  *billResponse `json:"bill,omitempty"`
	Error string        `json:"error,omitempty"`
}

type batchResponse struct {
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Items     []batchItemResponse `json:"items"`
}

func toBillResponse(bill core.Bill, categoryName string) billResponse {
	resp := billResponse{
		ID:            bill.ID,
		Amount:        bill.Amount.Float(),
		Kind:          string(bill.Kind),
		Description:   bill.Description,
		CategoryID:    bill.CategoryID,
		Category:      categoryName,
		SourceAssetID: bill.SourceAssetID,
		TargetAssetID: bill.TargetAssetID,
		CreatedAt:     bill.CreatedAt.Format(timestampLayout),
	}
	if bill.SourceAmount != nil {
		v := bill.SourceAmount.Float()
		resp.SourceAmount = &v
	}
	if bill.TargetAmount != nil {
		v := bill.TargetAmount.Float()
		resp.TargetAmount = &v
	}
	return resp
}

func toCategoryResponses(cats []core.Category) []categoryResponse {
	out := make([]categoryResponse, len(cats))
	for i, c := range cats {
		out[i] = categoryResponse{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Color:       c.Color,
			Kind:        string(c.Kind),
		}
	}
	return out
}

func toSnapshotResponse(s services.PeriodSnapshot) snapshotResponse {
	breakdown := make([]breakdownResponse, len(s.Breakdown))
	for i, row := range s.Breakdown {
		breakdown[i] = breakdownResponse{
			CategoryID: row.CategoryID,
			Category:   row.CategoryName,
			Color:      row.Color,
			Total:      row.Total.Float(),
			Percentage: row.Percentage,
		}
	}
	return snapshotResponse{
		Period:    string(s.Period),
		Reference: s.Reference,
		Label:     s.Label,
		Start:     formatDay(s.Start),
		End:       formatDay(s.End),
		Total:     s.Total.Float(),
		Breakdown: breakdown,
	}
}

func toSeriesResponse(s services.TimelineSeries) seriesResponse {
	buckets := make([]bucketResponse, len(s.Buckets))
	for i, b := range s.Buckets {
		buckets[i] = bucketResponse{
			Label:        b.Label,
			DisplayLabel: b.DisplayLabel,
			Start:        formatDay(b.Start),
			End:          formatDay(b.End),
			Total:        b.Total.Float(),
		}
	}
	return seriesResponse{
		Reference: s.Reference,
		Label:     s.Label,
		Total:     s.Total.Float(),
		Buckets:   buckets,
	}
}

func formatDay(t time.Time) string {
	return t.Format("2006-01-02")
}

func chartList(images []charts.Image) []charts.Image {
	if images == nil {
		return []charts.Image{}
	}
	return images
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	cats, err := s.reports.Categories(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": toCategoryResponses(cats)})
}

func (s *Server) handleRecordBill(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var req billRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, r, err)
		return
	}
	recorded, err := s.bills.Record(r.Context(), owner, input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBillResponse(recorded.Bill, recorded.CategoryName))
}

func (s *Server) handleRecordBatch(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var req batchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.Bills) == 0 {
		writeError(w, r, fmt.Errorf("%w: bills must not be empty", errBadRequest))
		return
	}

	inputs := make([]services.BillInput, 0, len(req.Bills))
	prefail := map[int]error{}
	for i, raw := range req.Bills {
		input, err := parseBatchItem(raw)
		if err != nil {
			prefail[i] = err
			// keep the slot so indexes line up
			input = services.BillInput{}
		}
		inputs = append(inputs, input)
	}

	result := s.bills.RecordBatch(r.Context(), owner, inputs)

	resp := batchResponse{Items: make([]batchItemResponse, 0, len(result.Items))}
	for _, item := range result.Items {
		out := batchItemResponse{Index: item.Index}
		if err, bad := prefail[item.Index]; bad {
			out.Error = err.Error()
			resp.Failed++
		} else if item.Err != nil {
			out.Error = item.Err.Error()
			resp.Failed++
		} else {
			bill := toBillResponse(item.Bill.Bill, item.Bill.CategoryName)
			out.Bill = &bill
			resp.Succeeded++
		}
		resp.Items = append(resp.Items, out)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecordInvestment(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	var req investmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	input, err := req.toInput()
	if err != nil {
		writeError(w, r, err)
		return
	}
	recorded, err := s.bills.RecordInvestment(r.Context(), owner, input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBillResponse(recorded.Bill, recorded.CategoryName))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	q, err := parseReportQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.reports.Summary(r.Context(), owner, q.Kind, q.Period, q.Reference)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary": toSnapshotResponse(summary.Snapshot),
		"charts":  chartList(summary.Charts),
	})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	q, err := parseReportQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if q.Reference2 == "" {
		writeError(w, r, fmt.Errorf("%w: reference2 is required", errBadRequest))
		return
	}
	cmp, err := s.reports.Compare(r.Context(), owner, q.Kind, q.Period, q.Reference, q.Reference2, q.CategoryIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"first":  toSnapshotResponse(cmp.First),
		"second": toSnapshotResponse(cmp.Second),
		"diff":   float64(cmp.DiffCents) / 100.0,
		"charts": chartList(cmp.Charts),
	})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	q, err := parseReportQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	timeline, err := s.reports.Timeline(r.Context(), owner, q.Kind, q.Period, q.Reference, q.Granularity, q.CategoryIDs, q.ComparisonRef)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := map[string]any{
		"granularity": string(timeline.Granularity),
		"primary":     toSeriesResponse(timeline.Primary),
		"categories":  toCategoryResponses(timeline.Categories),
		"charts":      chartList(timeline.Charts),
	}
	if timeline.Comparison != nil {
		resp["comparison"] = toSeriesResponse(*timeline.Comparison)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCategoryDetail(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	q, err := parseReportQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := s.reports.CategoryDetail(r.Context(), owner, q.Kind, q.Period, q.Reference, q.CategoryIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}

	bills := make([]billResponse, 0, len(detail.TopBills))
	for _, b := range detail.TopBills {
		bills = append(bills, toBillResponse(b.Bill, b.CategoryName))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"label":      detail.Label,
		"start":      formatDay(detail.Start),
		"end":        formatDay(detail.End),
		"total":      detail.Total.Float(),
		"categories": toCategoryResponses(detail.Categories),
		"top_bills":  bills,
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
