// Package http is the JSON tool surface of the ledger. It maps requests to
// the service façade and the error taxonomy to status codes; no core logic
// lives here.
package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tally/internal/core"
	"tally/internal/services"
)

const timestampLayout = "2006-01-02 15:04:05"

// amountCents accepts either a decimal string ("23.50") or a plain JSON
// number and normalizes to cents.
type amountCents struct {
	Money core.Money
}

func (a *amountCents) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		money, err := core.ParseAmount(s)
		if err != nil {
			return err
		}
		a.Money = money
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: amount must be a number or decimal string", errBadRequest)
	}
	a.Money = core.Money{Cents: core.CentsFromFloat(f)}
	return a.Money.Validate()
}

// flexTime accepts "2006-01-02 15:04:05", plain dates and RFC3339. Offsets
// are dropped, keeping the wall-clock reading.
type flexTime struct {
	Time time.Time
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: timestamp must be a string", errBadRequest)
	}
	if s == "" {
		return nil
	}
	for _, layout := range []string{timestampLayout, "2006-01-02", time.RFC3339} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = core.NaiveWallClock(parsed)
			return nil
		}
	}
	return fmt.Errorf("%w: unrecognized timestamp %q", errBadRequest, s)
}

type billRequest struct {
	Amount      *amountCents `json:"amount"`
	Kind        string       `json:"kind"`
	Description string       `json:"description"`
	CategoryID  *int64       `json:"category_id"`
	CreatedAt   flexTime     `json:"created_at"`
}

func (b billRequest) toInput() (services.BillInput, error) {
	if b.Amount == nil {
		return services.BillInput{}, fmt.Errorf("%w: amount is required", errBadRequest)
	}
	kind := core.Kind(b.Kind)
	if b.Kind == "" {
		kind = core.Expense
	}
	if !core.ValidKind(kind) {
		return services.BillInput{}, fmt.Errorf("%w: unknown kind %q", errBadRequest, b.Kind)
	}
	return services.BillInput{
		Amount:      b.Amount.Money,
		Kind:        kind,
		Description: strings.TrimSpace(b.Description),
		CategoryID:  b.CategoryID,
		CreatedAt:   b.CreatedAt.Time,
	}, nil
}

// batchRequest keeps its items raw so each one decodes on its own. A
// malformed or invalid entry must fail that entry alone, never the batch.
type batchRequest struct {
	Bills []json.RawMessage `json:"bills"`
}

func parseBatchItem(raw json.RawMessage) (services.BillInput, error) {
	var req billRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if statusFor(err) != http.StatusInternalServerError {
			return services.BillInput{}, err
		}
		return services.BillInput{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return req.toInput()
}

type investmentRequest struct {
	Mode          string       `json:"mode"`
	SourceAssetID *int64       `json:"source_asset_id"`
	TargetAssetID *int64       `json:"target_asset_id"`
	Amount        *amountCents `json:"amount"`
	Description   string       `json:"description"`
	CreatedAt     flexTime     `json:"created_at"`
}

func (i investmentRequest) toInput() (services.InvestmentInput, error) {
	if i.Amount == nil {
		return services.InvestmentInput{}, fmt.Errorf("%w: amount is required", errBadRequest)
	}
	return services.InvestmentInput{
		Mode:          services.InvestmentMode(i.Mode),
		SourceAssetID: i.SourceAssetID,
		TargetAssetID: i.TargetAssetID,
		Amount:        i.Amount.Money,
		Description:   strings.TrimSpace(i.Description),
		CreatedAt:     i.CreatedAt.Time,
	}, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if statusFor(err) != http.StatusInternalServerError {
			// amountCents and flexTime already produce taxonomy errors
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// reportQuery carries the common query parameters of the report endpoints.
type reportQuery struct {
	Kind          core.Kind
	Period        core.Period
	Reference     string
	Reference2    string
	ComparisonRef string
	Granularity   core.Granularity
	CategoryIDs   []int64
}

func parseReportQuery(r *http.Request) (reportQuery, error) {
	q := r.URL.Query()

	kind := core.Kind(strings.TrimSpace(q.Get("kind")))
	if kind == "" {
		kind = core.Expense
	}
	if !core.ValidKind(kind) {
		return reportQuery{}, fmt.Errorf("%w: unknown kind %q", errBadRequest, q.Get("kind"))
	}

	period := core.Period(strings.TrimSpace(q.Get("period")))
	if !core.ValidPeriod(period) {
		return reportQuery{}, fmt.Errorf("%w: unknown period %q", errBadRequest, q.Get("period"))
	}

	ids, err := parseCategoryIDs(q.Has("category_ids"), q.Get("category_ids"))
	if err != nil {
		return reportQuery{}, err
	}

	return reportQuery{
		Kind:          kind,
		Period:        period,
		Reference:     strings.TrimSpace(q.Get("reference")),
		Reference2:    strings.TrimSpace(q.Get("reference2")),
		ComparisonRef: strings.TrimSpace(q.Get("comparison_reference")),
		Granularity:   core.Granularity(strings.TrimSpace(q.Get("granularity"))),
		CategoryIDs:   ids,
	}, nil
}

// parseCategoryIDs distinguishes an absent parameter (nil, all categories)
// from a present-but-empty one (empty selection).
func parseCategoryIDs(present bool, raw string) ([]int64, error) {
	if !present {
		return nil, nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []int64{}, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid category id %q", errBadRequest, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
