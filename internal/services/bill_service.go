// Package services orchestrates recording and reporting on top of the bill
// store, the AMQP export pipeline and the chart generator.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/core"
)

// Publisher is the export notification surface. Implemented by *amqp.Client.
type Publisher interface {
	PublishBillSync(ctx context.Context, billID int64) error
}

// InvestmentMode selects how an investment transaction moves value.
type InvestmentMode string

const (
	// ModeInvest moves principal from the source asset into the target.
	ModeInvest InvestmentMode = "invest"
	// ModeProfit records realized gains landing on the target asset.
	ModeProfit InvestmentMode = "profit"
)

var (
	ErrUnknownAsset      = errors.New("unknown asset")
	ErrInvalidInvestMode = errors.New("investment mode must be invest or profit")
)

// BillInput is one bill to record. Amount is already parsed to cents.
type BillInput struct {
	Amount      core.Money
	Kind        core.Kind
	Description string
	CategoryID  *int64
	CreatedAt   time.Time
}

// RecordedBill pairs a stored bill with its resolved category name.
type RecordedBill struct {
	Bill         core.Bill
	CategoryName string
}

// BatchItem is the per-input outcome of a batch record.
type BatchItem struct {
	Bill  *RecordedBill
	Err   error
	Index int
}

// BatchResult reports a best-effort batch: failures never block the rest.
type BatchResult struct {
	Items     []BatchItem
	Succeeded int
	Failed    int
}

// InvestmentInput describes a record_investment request.
type InvestmentInput struct {
	Mode          InvestmentMode
	SourceAssetID *int64
	TargetAssetID *int64
	Amount        core.Money
	Description   string
	CreatedAt     time.Time
}

// BillService records bills locally and notifies the export worker.
type BillService struct {
	store     Store
	publisher Publisher
}

// NewBillService creates a bill recorder. publisher may be nil, in which case
// export notifications are skipped.
func NewBillService(store Store, publisher Publisher) *BillService {
	return &BillService{store: store, publisher: publisher}
}

// Record validates and persists one bill. The category kind must match the
// bill kind when the category resolves; a dangling category id does not block
// recording.
func (s *BillService) Record(ctx context.Context, owner string, in BillInput) (RecordedBill, error) {
	if err := in.Amount.Validate(); err != nil {
		return RecordedBill{}, err
	}
	if !core.ValidKind(in.Kind) {
		return RecordedBill{}, fmt.Errorf("invalid bill kind %q", in.Kind)
	}

	cat, categoryName, err := resolveCategoryName(ctx, s.store, owner, in.CategoryID)
	if err != nil {
		return RecordedBill{}, err
	}
	if cat != nil && cat.Kind != in.Kind {
		return RecordedBill{}, fmt.Errorf("%w: category %q is %s, bill is %s",
			core.ErrCategoryKindMismatch, cat.Name, cat.Kind, in.Kind)
	}

	bill, err := s.store.CreateBill(ctx, core.Bill{
		Owner:       owner,
		Amount:      in.Amount,
		Kind:        in.Kind,
		Description: in.Description,
		CategoryID:  in.CategoryID,
		CreatedAt:   in.CreatedAt,
	})
	if err != nil {
		return RecordedBill{}, fmt.Errorf("save bill: %w", err)
	}

	s.publishSync(ctx, bill.ID)

	slog.InfoContext(ctx, "Bill recorded",
		"bill_id", bill.ID,
		"owner", owner,
		"bill_kind", bill.Kind,
		"amount_cents", bill.Amount.Cents,
		"category", categoryName)

	return RecordedBill{Bill: bill, CategoryName: categoryName}, nil
}

// RecordBatch records each input independently, best effort.
func (s *BillService) RecordBatch(ctx context.Context, owner string, inputs []BillInput) BatchResult {
	result := BatchResult{Items: make([]BatchItem, 0, len(inputs))}
	for i, in := range inputs {
		recorded, err := s.Record(ctx, owner, in)
		item := BatchItem{Index: i}
		if err != nil {
			item.Err = err
			result.Failed++
			slog.WarnContext(ctx, "Batch item failed", "index", i, "error", err)
		} else {
			item.Bill = &recorded
			result.Succeeded++
		}
		result.Items = append(result.Items, item)
	}
	return result
}

// RecordInvestment validates the referenced assets and records an
// investment-kind bill under the owner's investment category, creating that
// category on first use.
func (s *BillService) RecordInvestment(ctx context.Context, owner string, in InvestmentInput) (RecordedBill, error) {
	if in.Mode != ModeInvest && in.Mode != ModeProfit {
		return RecordedBill{}, fmt.Errorf("%w: %q", ErrInvalidInvestMode, in.Mode)
	}
	if err := in.Amount.Validate(); err != nil {
		return RecordedBill{}, err
	}
	if err := s.checkAsset(ctx, in.SourceAssetID); err != nil {
		return RecordedBill{}, err
	}
	if err := s.checkAsset(ctx, in.TargetAssetID); err != nil {
		return RecordedBill{}, err
	}

	cat, err := s.ensureInvestmentCategory(ctx, owner)
	if err != nil {
		return RecordedBill{}, err
	}

	description := in.Description
	if description == "" {
		description = string(in.Mode)
	}

	bill := core.Bill{
		Owner:         owner,
		Amount:        in.Amount,
		Kind:          core.Investment,
		Description:   description,
		CategoryID:    &cat.ID,
		SourceAssetID: in.SourceAssetID,
		TargetAssetID: in.TargetAssetID,
		CreatedAt:     in.CreatedAt,
	}
	switch in.Mode {
	case ModeInvest:
		amount := in.Amount
		bill.SourceAmount = &amount
	case ModeProfit:
		amount := in.Amount
		bill.TargetAmount = &amount
	}

	stored, err := s.store.CreateBill(ctx, bill)
	if err != nil {
		return RecordedBill{}, fmt.Errorf("save investment bill: %w", err)
	}

	s.publishSync(ctx, stored.ID)

	slog.InfoContext(ctx, "Investment recorded",
		"bill_id", stored.ID,
		"owner", owner,
		"mode", in.Mode,
		"amount_cents", stored.Amount.Cents)

	return RecordedBill{Bill: stored, CategoryName: cat.Name}, nil
}

func (s *BillService) checkAsset(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	asset, err := s.store.AssetByID(ctx, *id)
	if err != nil {
		return fmt.Errorf("lookup asset %d: %w", *id, err)
	}
	if asset == nil {
		return fmt.Errorf("%w: %d", ErrUnknownAsset, *id)
	}
	return nil
}

func (s *BillService) ensureInvestmentCategory(ctx context.Context, owner string) (core.Category, error) {
	cat, err := s.store.CategoryByName(ctx, owner, "investment", core.Investment)
	if err != nil {
		return core.Category{}, fmt.Errorf("lookup investment category: %w", err)
	}
	if cat != nil {
		return *cat, nil
	}
	created, err := s.store.CreateCategory(ctx, core.Category{
		Owner:       owner,
		Name:        "investment",
		Description: "funds, stocks and savings plans",
		Color:       "#9ADCFF",
		Kind:        core.Investment,
	})
	if err != nil {
		return core.Category{}, fmt.Errorf("create investment category: %w", err)
	}
	return created, nil
}

// publishSync notifies the export worker. The bill is already durable, so a
// publish failure is logged and swallowed; the worker's pending scan will
// pick the bill up later.
func (s *BillService) publishSync(ctx context.Context, billID int64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishBillSync(ctx, billID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"bill_id", billID, "error", err)
	}
}
