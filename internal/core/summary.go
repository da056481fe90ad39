package core

// UncategorizedLabel is the display name given to bills that carry no
// category reference.
const UncategorizedLabel = "uncategorized"

// CategoryBreakdown is one row of a per-category aggregation. A nil
// CategoryID means the bills were uncategorized.
type CategoryBreakdown struct {
	CategoryID   *int64
	CategoryName string
	Color        string
	Total        Money
	Percentage   float64
}

// ApplyPercentages fills Percentage on every row as the row's share of the
// grand total, in percent. When the grand total is not positive every row
// gets exactly 0 rather than a fabricated share.
func ApplyPercentages(rows []CategoryBreakdown) {
	var total int64
	for _, r := range rows {
		total += r.Total.Cents
	}
	for i := range rows {
		if total <= 0 {
			rows[i].Percentage = 0
			continue
		}
		rows[i].Percentage = float64(rows[i].Total.Cents) / float64(total) * 100
	}
}
