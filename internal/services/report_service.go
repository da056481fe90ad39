package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/charts"
	"tally/internal/core"
	"tally/internal/storage"
)

// ErrNoCategorySelection rejects detail requests without any category ids.
var ErrNoCategorySelection = errors.New("at least one category id is required")

const topBillLimit = 20

// PeriodSnapshot is the aggregate view of one resolved period.
type PeriodSnapshot struct {
	Period    core.Period
	Reference string
	Label     string
	Start     time.Time
	End       time.Time
	Total     core.Money
	Breakdown []core.CategoryBreakdown
}

// Summary is the result of the summary operation.
type Summary struct {
	Snapshot PeriodSnapshot
	Charts   []charts.Image
}

// Comparison holds two period snapshots of the same period type.
type Comparison struct {
	First     PeriodSnapshot
	Second    PeriodSnapshot
	DiffCents int64
	Charts    []charts.Image
}

// TimelineSeries is one bucketed series of a timeline report.
type TimelineSeries struct {
	Reference string
	Label     string
	Buckets   []core.Bucket
	Total     core.Money
}

// Timeline is the result of the timeline operation.
type Timeline struct {
	Granularity core.Granularity
	Primary     TimelineSeries
	Comparison  *TimelineSeries
	Categories  []core.Category
	Charts      []charts.Image
}

// BillDetail pairs a bill with its resolved category name.
type BillDetail struct {
	Bill         core.Bill
	CategoryName string
}

// CategoryDetail is the result of the category detail operation.
type CategoryDetail struct {
	Label      string
	Start      time.Time
	End        time.Time
	Total      core.Money
	Categories []core.Category
	TopBills   []BillDetail
}

// ReportService composes the period resolver, the bucketer and the
// aggregation queries into the read-side operations. generator may be nil;
// charts are then skipped entirely.
type ReportService struct {
	store     Store
	generator charts.Generator
}

func NewReportService(store Store, generator charts.Generator) *ReportService {
	return &ReportService{store: store, generator: generator}
}

// Categories seeds the owner's defaults and returns all their categories.
func (s *ReportService) Categories(ctx context.Context, owner string) ([]core.Category, error) {
	if err := s.store.EnsureDefaultCategories(ctx, owner); err != nil {
		return nil, fmt.Errorf("ensure default categories: %w", err)
	}
	if err := s.store.EnsureDefaultAssets(ctx); err != nil {
		return nil, fmt.Errorf("ensure default assets: %w", err)
	}
	return s.store.ListCategories(ctx, owner)
}

// Summary aggregates one period: total, per-category breakdown with
// percentages, and an optional pie chart.
func (s *ReportService) Summary(ctx context.Context, owner string, kind core.Kind, period core.Period, reference string) (Summary, error) {
	if !core.ValidKind(kind) {
		return Summary{}, fmt.Errorf("invalid bill kind %q", kind)
	}
	snapshot, err := s.snapshot(ctx, owner, kind, period, reference, nil)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Snapshot: snapshot,
		Charts:   s.summaryCharts(ctx, snapshot),
	}, nil
}

// Compare aggregates two references of the same period type. The snapshots
// are fetched concurrently.
func (s *ReportService) Compare(ctx context.Context, owner string, kind core.Kind, period core.Period, ref1, ref2 string, categoryIDs []int64) (Comparison, error) {
	if !core.ValidKind(kind) {
		return Comparison{}, fmt.Errorf("invalid bill kind %q", kind)
	}
	categoryIDs = uniqueCategoryIDs(categoryIDs)
	if categoryIDs != nil {
		if _, err := validateCategorySelection(ctx, s.store, owner, categoryIDs); err != nil {
			return Comparison{}, err
		}
	}

	var first, second PeriodSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		first, err = s.snapshot(gctx, owner, kind, period, ref1, categoryIDs)
		return err
	})
	g.Go(func() error {
		var err error
		second, err = s.snapshot(gctx, owner, kind, period, ref2, categoryIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return Comparison{}, err
	}

	return Comparison{
		First:     first,
		Second:    second,
		DiffCents: first.Total.Cents - second.Total.Cents,
		Charts:    s.comparisonCharts(ctx, first, second),
	}, nil
}

// Timeline buckets one period at the requested granularity, optionally
// restricted to selected categories and paired with a comparison reference
// of the same period type.
func (s *ReportService) Timeline(ctx context.Context, owner string, kind core.Kind, period core.Period, reference string, granularity core.Granularity, categoryIDs []int64, comparisonRef string) (Timeline, error) {
	if !core.ValidKind(kind) {
		return Timeline{}, fmt.Errorf("invalid bill kind %q", kind)
	}
	if err := core.ValidateGranularity(period, granularity); err != nil {
		return Timeline{}, err
	}

	categoryIDs = uniqueCategoryIDs(categoryIDs)
	var selected []core.Category
	if len(categoryIDs) > 0 {
		var err error
		selected, err = validateCategorySelection(ctx, s.store, owner, categoryIDs)
		if err != nil {
			return Timeline{}, err
		}
	}

	primary, err := s.buildSeries(ctx, owner, kind, period, reference, granularity, categoryIDs)
	if err != nil {
		return Timeline{}, err
	}

	result := Timeline{
		Granularity: granularity,
		Primary:     primary,
		Categories:  selected,
	}

	if comparisonRef != "" {
		comparison, err := s.buildSeries(ctx, owner, kind, period, comparisonRef, granularity, categoryIDs)
		if err != nil {
			return Timeline{}, err
		}
		result.Comparison = &comparison
	}

	result.Charts = s.timelineCharts(ctx, result)
	return result, nil
}

// CategoryDetail reports the total and the largest bills of an explicit
// category selection over one period.
func (s *ReportService) CategoryDetail(ctx context.Context, owner string, kind core.Kind, period core.Period, reference string, categoryIDs []int64) (CategoryDetail, error) {
	if !core.ValidKind(kind) {
		return CategoryDetail{}, fmt.Errorf("invalid bill kind %q", kind)
	}
	categoryIDs = uniqueCategoryIDs(categoryIDs)
	if len(categoryIDs) == 0 {
		return CategoryDetail{}, ErrNoCategorySelection
	}
	selected, err := validateCategorySelection(ctx, s.store, owner, categoryIDs)
	if err != nil {
		return CategoryDetail{}, err
	}

	start, end, label, err := core.ResolvePeriod(period, reference)
	if err != nil {
		return CategoryDetail{}, err
	}

	filter := storage.BillFilter{Owner: owner, Kind: kind, Start: start, End: end, CategoryIDs: categoryIDs}
	total, err := s.store.TotalAmount(ctx, filter)
	if err != nil {
		return CategoryDetail{}, fmt.Errorf("total for categories: %w", err)
	}
	bills, err := s.store.TopBills(ctx, filter, topBillLimit)
	if err != nil {
		return CategoryDetail{}, fmt.Errorf("top bills: %w", err)
	}

	names := make(map[int64]string, len(selected))
	for _, c := range selected {
		names[c.ID] = c.Name
	}
	details := make([]BillDetail, 0, len(bills))
	for _, b := range bills {
		name := core.UncategorizedLabel
		if b.CategoryID != nil {
			if n, ok := names[*b.CategoryID]; ok {
				name = n
			}
		}
		details = append(details, BillDetail{Bill: b, CategoryName: name})
	}

	return CategoryDetail{
		Label:      label,
		Start:      start,
		End:        end,
		Total:      total,
		Categories: selected,
		TopBills:   details,
	}, nil
}

// snapshot fetches the aggregates of one resolved period. An empty non-nil
// category selection short-circuits to a zero snapshot without touching the
// store.
func (s *ReportService) snapshot(ctx context.Context, owner string, kind core.Kind, period core.Period, reference string, categoryIDs []int64) (PeriodSnapshot, error) {
	start, end, label, err := core.ResolvePeriod(period, reference)
	if err != nil {
		return PeriodSnapshot{}, err
	}

	snapshot := PeriodSnapshot{
		Period:    period,
		Reference: reference,
		Label:     label,
		Start:     start,
		End:       end,
		Breakdown: []core.CategoryBreakdown{},
	}

	if categoryIDs != nil && len(categoryIDs) == 0 {
		return snapshot, nil
	}

	filter := storage.BillFilter{Owner: owner, Kind: kind, Start: start, End: end, CategoryIDs: categoryIDs}
	total, err := s.store.TotalAmount(ctx, filter)
	if err != nil {
		return PeriodSnapshot{}, fmt.Errorf("total amount: %w", err)
	}
	breakdown, err := s.store.CategoryTotals(ctx, filter)
	if err != nil {
		return PeriodSnapshot{}, fmt.Errorf("category totals: %w", err)
	}
	core.ApplyPercentages(breakdown)

	snapshot.Total = total
	snapshot.Breakdown = breakdown
	return snapshot, nil
}

// buildSeries buckets one reference of the period and fills the buckets from
// the matching bills. The same empty-selection short-circuit as snapshot
// applies.
func (s *ReportService) buildSeries(ctx context.Context, owner string, kind core.Kind, period core.Period, reference string, granularity core.Granularity, categoryIDs []int64) (TimelineSeries, error) {
	start, end, label, err := core.ResolvePeriod(period, reference)
	if err != nil {
		return TimelineSeries{}, err
	}
	buckets, err := core.Bucketize(start, end, granularity)
	if err != nil {
		return TimelineSeries{}, err
	}

	series := TimelineSeries{Reference: reference, Label: label, Buckets: buckets}
	if categoryIDs != nil && len(categoryIDs) == 0 {
		return series, nil
	}

	points, err := s.store.BillPoints(ctx, storage.BillFilter{
		Owner: owner, Kind: kind, Start: start, End: end, CategoryIDs: categoryIDs,
	})
	if err != nil {
		return TimelineSeries{}, fmt.Errorf("bill points: %w", err)
	}

	if unmatched := core.AssignToBuckets(buckets, granularity, points); unmatched > 0 {
		slog.ErrorContext(ctx, "Bills fell outside every bucket",
			"count", unmatched,
			"period", period,
			"reference", reference,
			"granularity", granularity)
	}
	series.Total = core.TotalOfBuckets(buckets)
	return series, nil
}

func (s *ReportService) summaryCharts(ctx context.Context, snapshot PeriodSnapshot) []charts.Image {
	if s.generator == nil || len(snapshot.Breakdown) == 0 {
		return []charts.Image{}
	}
	labels := make([]string, len(snapshot.Breakdown))
	values := make([]float64, len(snapshot.Breakdown))
	colors := make([]string, len(snapshot.Breakdown))
	for i, row := range snapshot.Breakdown {
		labels[i] = row.CategoryName
		values[i] = row.Total.Float()
		colors[i] = row.Color
	}
	title := fmt.Sprintf("%s %s", snapshot.Label, snapshot.Period)
	img, err := s.generator.PieChart(ctx, title, labels, values, colors)
	if err != nil {
		slog.WarnContext(ctx, "Chart generation failed", "title", title, "error", err)
		return []charts.Image{}
	}
	return []charts.Image{img}
}

func (s *ReportService) comparisonCharts(ctx context.Context, first, second PeriodSnapshot) []charts.Image {
	if s.generator == nil {
		return []charts.Image{}
	}
	title := fmt.Sprintf("%s vs %s", first.Label, second.Label)
	img, err := s.generator.BarChart(ctx, title,
		[]string{first.Label, second.Label},
		[]charts.Series{{Name: "total", Values: []float64{first.Total.Float(), second.Total.Float()}}})
	if err != nil {
		slog.WarnContext(ctx, "Chart generation failed", "title", title, "error", err)
		return []charts.Image{}
	}
	return []charts.Image{img}
}

func (s *ReportService) timelineCharts(ctx context.Context, t Timeline) []charts.Image {
	if s.generator == nil || len(t.Primary.Buckets) == 0 {
		return []charts.Image{}
	}

	labels := make([]string, len(t.Primary.Buckets))
	for i, b := range t.Primary.Buckets {
		labels[i] = b.DisplayLabel
	}
	series := []charts.Series{{Name: t.Primary.Label, Values: bucketValues(t.Primary.Buckets, len(labels))}}
	if t.Comparison != nil {
		series = append(series, charts.Series{
			Name:   t.Comparison.Label,
			Values: bucketValues(t.Comparison.Buckets, len(labels)),
		})
	}

	title := fmt.Sprintf("%s by %s", t.Primary.Label, t.Granularity)
	img, err := s.generator.LineChart(ctx, title, labels, series)
	if err != nil {
		slog.WarnContext(ctx, "Chart generation failed", "title", title, "error", err)
		return []charts.Image{}
	}
	return []charts.Image{img}
}

// bucketValues renders bucket totals as floats, padded or truncated to n so
// comparison series line up with the primary axis.
func bucketValues(buckets []core.Bucket, n int) []float64 {
	values := make([]float64, n)
	for i := 0; i < n && i < len(buckets); i++ {
		values[i] = buckets[i].Total.Float()
	}
	return values
}
