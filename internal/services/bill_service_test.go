package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/core"
	"tally/internal/storage"
)

type fakePublisher struct {
	published []int64
	fail      bool
}

func (p *fakePublisher) PublishBillSync(_ context.Context, billID int64) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.published = append(p.published, billID)
	return nil
}

func newTestStore(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedOwner(t *testing.T, repo *storage.SQLiteRepository, owner string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.EnsureDefaultCategories(ctx, owner))
	require.NoError(t, repo.EnsureDefaultAssets(ctx))
}

func categoryID(t *testing.T, repo *storage.SQLiteRepository, owner, name string, kind core.Kind) int64 {
	t.Helper()
	cat, err := repo.CategoryByName(context.Background(), owner, name, kind)
	require.NoError(t, err)
	require.NotNil(t, cat)
	return cat.ID
}

func TestRecordPersistsAndPublishes(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	seedOwner(t, repo, "7")
	dining := categoryID(t, repo, "7", "dining", core.Expense)

	pub := &fakePublisher{}
	svc := NewBillService(repo, pub)

	recorded, err := svc.Record(ctx, "7", BillInput{
		Amount:      core.Money{Cents: 2350},
		Kind:        core.Expense,
		Description: "lunch",
		CategoryID:  &dining,
	})
	require.NoError(t, err)

	assert.NotZero(t, recorded.Bill.ID)
	assert.Equal(t, "dining", recorded.CategoryName)
	assert.Equal(t, []int64{recorded.Bill.ID}, pub.published)

	stored, err := repo.Bill(ctx, recorded.Bill.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(2350), stored.Amount.Cents)
}

func TestRecordRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	svc := NewBillService(repo, nil)

	for _, cents := range []int64{0, -100} {
		_, err := svc.Record(ctx, "7", BillInput{
			Amount: core.Money{Cents: cents},
			Kind:   core.Expense,
		})
		require.ErrorIs(t, err, core.ErrInvalidAmount)
	}

	// nothing should have reached the store
	pending, err := repo.PendingExportBills(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRecordCategoryKindMismatch(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	seedOwner(t, repo, "7")
	salary := categoryID(t, repo, "7", "salary", core.Income)

	svc := NewBillService(repo, nil)
	_, err := svc.Record(ctx, "7", BillInput{
		Amount:     core.Money{Cents: 100},
		Kind:       core.Expense,
		CategoryID: &salary,
	})
	require.ErrorIs(t, err, core.ErrCategoryKindMismatch)
}

func TestRecordDanglingCategoryProceeds(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	svc := NewBillService(repo, nil)

	dangling := int64(424242)
	recorded, err := svc.Record(ctx, "7", BillInput{
		Amount:     core.Money{Cents: 100},
		Kind:       core.Expense,
		CategoryID: &dangling,
	})
	require.NoError(t, err)
	assert.Equal(t, "unknown category: 424242", recorded.CategoryName)
}

func TestRecordWithoutCategoryIsUncategorized(t *testing.T) {
	repo := newTestStore(t)
	svc := NewBillService(repo, nil)

	recorded, err := svc.Record(context.Background(), "7", BillInput{
		Amount: core.Money{Cents: 100},
		Kind:   core.Expense,
	})
	require.NoError(t, err)
	assert.Equal(t, core.UncategorizedLabel, recorded.CategoryName)
}

func TestRecordPublishFailureIsNonFatal(t *testing.T) {
	repo := newTestStore(t)
	svc := NewBillService(repo, &fakePublisher{fail: true})

	recorded, err := svc.Record(context.Background(), "7", BillInput{
		Amount: core.Money{Cents: 100},
		Kind:   core.Expense,
	})
	require.NoError(t, err)
	assert.NotZero(t, recorded.Bill.ID)
}

func TestRecordBatchBestEffort(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	seedOwner(t, repo, "7")
	salary := categoryID(t, repo, "7", "salary", core.Income)

	svc := NewBillService(repo, nil)
	result := svc.RecordBatch(ctx, "7", []BillInput{
		{Amount: core.Money{Cents: 500}, Kind: core.Expense, Description: "ok"},
		{Amount: core.Money{Cents: 0}, Kind: core.Expense, Description: "bad amount"},
		{Amount: core.Money{Cents: 300}, Kind: core.Expense, CategoryID: &salary},
		{Amount: core.Money{Cents: 700}, Kind: core.Expense, Description: "also ok"},
	})

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Items, 4)

	assert.NotNil(t, result.Items[0].Bill)
	require.Error(t, result.Items[1].Err)
	assert.ErrorIs(t, result.Items[1].Err, core.ErrInvalidAmount)
	require.Error(t, result.Items[2].Err)
	assert.ErrorIs(t, result.Items[2].Err, core.ErrCategoryKindMismatch)
	assert.NotNil(t, result.Items[3].Bill)

	// only the valid bills landed in the store
	pending, err := repo.PendingExportBills(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestRecordInvestmentInvestMode(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	seedOwner(t, repo, "7")
	asset, err := repo.AssetByName(ctx, "CNY")
	require.NoError(t, err)
	require.NotNil(t, asset)

	svc := NewBillService(repo, nil)
	recorded, err := svc.RecordInvestment(ctx, "7", InvestmentInput{
		Mode:          ModeInvest,
		SourceAssetID: &asset.ID,
		Amount:        core.Money{Cents: 50000},
	})
	require.NoError(t, err)

	assert.Equal(t, core.Investment, recorded.Bill.Kind)
	assert.Equal(t, "investment", recorded.CategoryName)
	assert.Equal(t, "invest", recorded.Bill.Description)
	require.NotNil(t, recorded.Bill.SourceAmount)
	assert.Equal(t, int64(50000), recorded.Bill.SourceAmount.Cents)
	assert.Nil(t, recorded.Bill.TargetAmount)
}

func TestRecordInvestmentProfitMode(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	seedOwner(t, repo, "7")
	asset, err := repo.AssetByName(ctx, "CNY")
	require.NoError(t, err)

	svc := NewBillService(repo, nil)
	recorded, err := svc.RecordInvestment(ctx, "7", InvestmentInput{
		Mode:          ModeProfit,
		TargetAssetID: &asset.ID,
		Amount:        core.Money{Cents: 1200},
		Description:   "dividend",
	})
	require.NoError(t, err)

	assert.Equal(t, "dividend", recorded.Bill.Description)
	require.NotNil(t, recorded.Bill.TargetAmount)
	assert.Equal(t, int64(1200), recorded.Bill.TargetAmount.Cents)
	assert.Nil(t, recorded.Bill.SourceAmount)
}

func TestRecordInvestmentCreatesCategoryOnce(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	// no seeding: the investment category does not exist yet
	svc := NewBillService(repo, nil)

	first, err := svc.RecordInvestment(ctx, "7", InvestmentInput{
		Mode: ModeInvest, Amount: core.Money{Cents: 100},
	})
	require.NoError(t, err)
	second, err := svc.RecordInvestment(ctx, "7", InvestmentInput{
		Mode: ModeInvest, Amount: core.Money{Cents: 200},
	})
	require.NoError(t, err)

	require.NotNil(t, first.Bill.CategoryID)
	require.NotNil(t, second.Bill.CategoryID)
	assert.Equal(t, *first.Bill.CategoryID, *second.Bill.CategoryID)
}

func TestRecordInvestmentValidation(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	svc := NewBillService(repo, nil)

	_, err := svc.RecordInvestment(ctx, "7", InvestmentInput{
		Mode: "withdraw", Amount: core.Money{Cents: 100},
	})
	require.ErrorIs(t, err, ErrInvalidInvestMode)

	missing := int64(999)
	_, err = svc.RecordInvestment(ctx, "7", InvestmentInput{
		Mode: ModeInvest, SourceAssetID: &missing, Amount: core.Money{Cents: 100},
	})
	require.ErrorIs(t, err, ErrUnknownAsset)

	_, err = svc.RecordInvestment(ctx, "7", InvestmentInput{
		Mode: ModeInvest, Amount: core.Money{Cents: 0},
	})
	require.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestUniqueCategoryIDs(t *testing.T) {
	assert.Nil(t, uniqueCategoryIDs(nil))
	assert.Equal(t, []int64{}, uniqueCategoryIDs([]int64{}))
	assert.Equal(t, []int64{3, 1, 2}, uniqueCategoryIDs([]int64{3, 1, 3, 2, 1}))
}

func TestRecordKeepsProvidedTimestamp(t *testing.T) {
	repo := newTestStore(t)
	svc := NewBillService(repo, nil)

	at := time.Date(2024, 2, 29, 18, 45, 0, 0, time.UTC)
	recorded, err := svc.Record(context.Background(), "7", BillInput{
		Amount:    core.Money{Cents: 100},
		Kind:      core.Expense,
		CreatedAt: at,
	})
	require.NoError(t, err)
	assert.Equal(t, at, recorded.Bill.CreatedAt)
}
