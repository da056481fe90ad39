package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/charts"
	"tally/internal/core"
	"tally/internal/storage"
)

// countingStore wraps a real store and counts aggregate query calls.
type countingStore struct {
	Store
	aggregateCalls int
}

func (c *countingStore) TotalAmount(ctx context.Context, f storage.BillFilter) (core.Money, error) {
	c.aggregateCalls++
	return c.Store.TotalAmount(ctx, f)
}

func (c *countingStore) CategoryTotals(ctx context.Context, f storage.BillFilter) ([]core.CategoryBreakdown, error) {
	c.aggregateCalls++
	return c.Store.CategoryTotals(ctx, f)
}

func (c *countingStore) TopBills(ctx context.Context, f storage.BillFilter, limit int) ([]core.Bill, error) {
	c.aggregateCalls++
	return c.Store.TopBills(ctx, f, limit)
}

func (c *countingStore) BillPoints(ctx context.Context, f storage.BillFilter) ([]core.BillPoint, error) {
	c.aggregateCalls++
	return c.Store.BillPoints(ctx, f)
}

type fakeGenerator struct {
	fail  bool
	calls int
}

func (g *fakeGenerator) image(title string) (charts.Image, error) {
	g.calls++
	if g.fail {
		return charts.Image{}, errors.New("render failed")
	}
	return charts.Image{Title: title, MimeType: "image/png", URL: "https://charts.example/x.png"}, nil
}

func (g *fakeGenerator) PieChart(_ context.Context, title string, _ []string, _ []float64, _ []string) (charts.Image, error) {
	return g.image(title)
}

func (g *fakeGenerator) BarChart(_ context.Context, title string, _ []string, _ []charts.Series) (charts.Image, error) {
	return g.image(title)
}

func (g *fakeGenerator) LineChart(_ context.Context, title string, _ []string, _ []charts.Series) (charts.Image, error) {
	return g.image(title)
}

func recordExpense(t *testing.T, repo *storage.SQLiteRepository, owner string, cents int64, categoryID *int64, at time.Time) core.Bill {
	t.Helper()
	bill, err := repo.CreateBill(context.Background(), core.Bill{
		Owner:      owner,
		Amount:     core.Money{Cents: cents},
		Kind:       core.Expense,
		CategoryID: categoryID,
		CreatedAt:  at,
	})
	require.NoError(t, err)
	return bill
}

func TestCategoriesSeedsDefaults(t *testing.T) {
	repo := newTestStore(t)
	svc := NewReportService(repo, nil)

	cats, err := svc.Categories(context.Background(), "7")
	require.NoError(t, err)
	require.NotEmpty(t, cats)
	for _, c := range cats {
		assert.Equal(t, "7", c.Owner)
	}

	again, err := svc.Categories(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, cats, again)
}

func TestSummaryMonth(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	seedOwner(t, repo, "7")
	dining := categoryID(t, repo, "7", "dining", core.Expense)
	transport := categoryID(t, repo, "7", "transport", core.Expense)

	march := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	recordExpense(t, repo, "7", 6000, &dining, march)
	recordExpense(t, repo, "7", 3000, &transport, march.AddDate(0, 0, 5))
	recordExpense(t, repo, "7", 1000, nil, march)
	// other owner, other month: excluded
	recordExpense(t, repo, "8", 9999, nil, march)
	recordExpense(t, repo, "7", 9999, nil, march.AddDate(0, 2, 0))

	svc := NewReportService(repo, nil)
	summary, err := svc.Summary(ctx, "7", core.Expense, core.Month, "2024-03")
	require.NoError(t, err)

	snap := summary.Snapshot
	assert.Equal(t, "2024-03", snap.Label)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), snap.Start)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), snap.End)
	assert.Equal(t, int64(10000), snap.Total.Cents)

	require.Len(t, snap.Breakdown, 3)
	assert.Equal(t, "dining", snap.Breakdown[0].CategoryName)
	assert.InDelta(t, 60.0, snap.Breakdown[0].Percentage, 0.001)
	assert.Equal(t, "transport", snap.Breakdown[1].CategoryName)
	assert.Equal(t, core.UncategorizedLabel, snap.Breakdown[2].CategoryName)

	var sum float64
	for _, row := range snap.Breakdown {
		sum += row.Percentage
	}
	assert.InDelta(t, 100.0, sum, 0.001)

	assert.Empty(t, summary.Charts)
}

func TestSummaryEmptyPeriod(t *testing.T) {
	repo := newTestStore(t)
	svc := NewReportService(repo, nil)

	summary, err := svc.Summary(context.Background(), "7", core.Expense, core.Week, "2024-W11")
	require.NoError(t, err)
	assert.Zero(t, summary.Snapshot.Total.Cents)
	assert.Empty(t, summary.Snapshot.Breakdown)
}

func TestSummaryInvalidReference(t *testing.T) {
	repo := newTestStore(t)
	svc := NewReportService(repo, nil)

	_, err := svc.Summary(context.Background(), "7", core.Expense, core.Month, "2024/03")
	require.ErrorIs(t, err, core.ErrInvalidPeriod)
}

func TestSummaryChartGenerated(t *testing.T) {
	repo := newTestStore(t)
	recordExpense(t, repo, "7", 500, nil, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))

	gen := &fakeGenerator{}
	svc := NewReportService(repo, gen)
	summary, err := svc.Summary(context.Background(), "7", core.Expense, core.Month, "2024-03")
	require.NoError(t, err)

	require.Len(t, summary.Charts, 1)
	assert.Equal(t, "https://charts.example/x.png", summary.Charts[0].URL)
}

func TestSummaryChartFailureIsNonFatal(t *testing.T) {
	repo := newTestStore(t)
	recordExpense(t, repo, "7", 500, nil, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))

	svc := NewReportService(repo, &fakeGenerator{fail: true})
	summary, err := svc.Summary(context.Background(), "7", core.Expense, core.Month, "2024-03")
	require.NoError(t, err)
	assert.Empty(t, summary.Charts)
	assert.Equal(t, int64(500), summary.Snapshot.Total.Cents)
}

func TestCompareTwoMonths(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	recordExpense(t, repo, "7", 5000, nil, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	recordExpense(t, repo, "7", 3000, nil, time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC))

	svc := NewReportService(repo, nil)
	cmp, err := svc.Compare(ctx, "7", core.Expense, core.Month, "2024-03", "2024-02", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(5000), cmp.First.Total.Cents)
	assert.Equal(t, int64(3000), cmp.Second.Total.Cents)
	assert.Equal(t, int64(2000), cmp.DiffCents)
}

func TestCompareInvalidSecondReference(t *testing.T) {
	repo := newTestStore(t)
	svc := NewReportService(repo, nil)

	_, err := svc.Compare(context.Background(), "7", core.Expense, core.Month, "2024-03", "bogus", nil)
	require.ErrorIs(t, err, core.ErrInvalidPeriod)
}

func TestCompareEmptySelectionSkipsStore(t *testing.T) {
	repo := newTestStore(t)
	recordExpense(t, repo, "7", 5000, nil, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))

	counting := &countingStore{Store: repo}
	svc := NewReportService(counting, nil)

	cmp, err := svc.Compare(context.Background(), "7", core.Expense, core.Month, "2024-03", "2024-02", []int64{})
	require.NoError(t, err)
	assert.Zero(t, cmp.First.Total.Cents)
	assert.Zero(t, cmp.Second.Total.Cents)
	assert.Empty(t, cmp.First.Breakdown)
	assert.Zero(t, counting.aggregateCalls, "empty selection must not hit aggregate queries")
}

func TestCompareUnknownCategory(t *testing.T) {
	repo := newTestStore(t)
	svc := NewReportService(repo, nil)

	_, err := svc.Compare(context.Background(), "7", core.Expense, core.Month, "2024-03", "2024-02", []int64{999})
	require.ErrorIs(t, err, core.ErrUnknownCategory)
}

func TestTimelineMonthByWeek(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	recordExpense(t, repo, "7", 500, nil, time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC))
	recordExpense(t, repo, "7", 700, nil, time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC))

	svc := NewReportService(repo, nil)
	tl, err := svc.Timeline(ctx, "7", core.Expense, core.Month, "2024-01", core.GranularityWeek, nil, "")
	require.NoError(t, err)

	buckets := tl.Primary.Buckets
	require.Len(t, buckets, 5)
	assert.Equal(t, "2024-W01", buckets[0].Label)
	assert.Equal(t, int64(500), buckets[0].Total.Cents)
	assert.Equal(t, int64(700), buckets[2].Total.Cents)
	assert.Equal(t, int64(1200), tl.Primary.Total.Cents)

	// gapless
	for i := 1; i < len(buckets); i++ {
		assert.Equal(t, buckets[i-1].End, buckets[i].Start)
	}
	assert.Nil(t, tl.Comparison)
}

func TestTimelineWithComparison(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	recordExpense(t, repo, "7", 500, nil, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))
	recordExpense(t, repo, "7", 900, nil, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC))

	svc := NewReportService(repo, nil)
	tl, err := svc.Timeline(ctx, "7", core.Expense, core.Month, "2024-03", core.GranularityDay, nil, "2024-02")
	require.NoError(t, err)

	assert.Len(t, tl.Primary.Buckets, 31)
	require.NotNil(t, tl.Comparison)
	assert.Len(t, tl.Comparison.Buckets, 29)
	assert.Equal(t, int64(500), tl.Primary.Total.Cents)
	assert.Equal(t, int64(900), tl.Comparison.Total.Cents)
}

func TestTimelineIncompatibleGranularity(t *testing.T) {
	repo := newTestStore(t)
	svc := NewReportService(repo, nil)

	_, err := svc.Timeline(context.Background(), "7", core.Expense, core.Week, "2024-W10", core.GranularityMonth, nil, "")
	require.ErrorIs(t, err, core.ErrIncompatibleGranularity)

	_, err = svc.Timeline(context.Background(), "7", core.Expense, core.Day, "2024-03-10", core.GranularityDay, nil, "")
	require.ErrorIs(t, err, core.ErrIncompatibleGranularity)
}

func TestTimelineUnknownCategory(t *testing.T) {
	repo := newTestStore(t)
	svc := NewReportService(repo, nil)

	_, err := svc.Timeline(context.Background(), "7", core.Expense, core.Month, "2024-03", core.GranularityWeek, []int64{12345}, "")
	require.ErrorIs(t, err, core.ErrUnknownCategory)
}

func TestTimelineCategoryFilter(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	seedOwner(t, repo, "7")
	dining := categoryID(t, repo, "7", "dining", core.Expense)
	transport := categoryID(t, repo, "7", "transport", core.Expense)

	at := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	recordExpense(t, repo, "7", 500, &dining, at)
	recordExpense(t, repo, "7", 900, &transport, at)

	svc := NewReportService(repo, nil)
	tl, err := svc.Timeline(ctx, "7", core.Expense, core.Month, "2024-03", core.GranularityWeek, []int64{dining, dining}, "")
	require.NoError(t, err)

	assert.Equal(t, int64(500), tl.Primary.Total.Cents)
	require.Len(t, tl.Categories, 1)
	assert.Equal(t, "dining", tl.Categories[0].Name)
}

func TestCategoryDetail(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	seedOwner(t, repo, "7")
	dining := categoryID(t, repo, "7", "dining", core.Expense)
	transport := categoryID(t, repo, "7", "transport", core.Expense)

	at := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	recordExpense(t, repo, "7", 500, &dining, at)
	recordExpense(t, repo, "7", 900, &dining, at.AddDate(0, 0, 3))
	recordExpense(t, repo, "7", 9999, &transport, at)

	svc := NewReportService(repo, nil)
	detail, err := svc.CategoryDetail(ctx, "7", core.Expense, core.Month, "2024-03", []int64{dining})
	require.NoError(t, err)

	assert.Equal(t, "2024-03", detail.Label)
	assert.Equal(t, int64(1400), detail.Total.Cents)
	require.Len(t, detail.TopBills, 2)
	assert.Equal(t, int64(900), detail.TopBills[0].Bill.Amount.Cents)
	assert.Equal(t, "dining", detail.TopBills[0].CategoryName)
}

func TestCategoryDetailValidation(t *testing.T) {
	repo := newTestStore(t)
	svc := NewReportService(repo, nil)
	ctx := context.Background()

	_, err := svc.CategoryDetail(ctx, "7", core.Expense, core.Month, "2024-03", nil)
	require.ErrorIs(t, err, ErrNoCategorySelection)

	_, err = svc.CategoryDetail(ctx, "7", core.Expense, core.Month, "2024-03", []int64{777})
	require.ErrorIs(t, err, core.ErrUnknownCategory)
}

func TestTimelineChartUsesComparisonSeries(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)
	recordExpense(t, repo, "7", 500, nil, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC))

	gen := &fakeGenerator{}
	svc := NewReportService(repo, gen)
	tl, err := svc.Timeline(ctx, "7", core.Expense, core.Month, "2024-03", core.GranularityWeek, nil, "2024-02")
	require.NoError(t, err)

	require.Len(t, tl.Charts, 1)
	assert.Equal(t, 1, gen.calls)
}
