package services

import (
	"context"
	"fmt"

	"tally/internal/core"
	"tally/internal/storage"
)

// Store is the storage surface the services need. Implemented by
// *storage.SQLiteRepository.
type Store interface {
	EnsureDefaultCategories(ctx context.Context, owner string) error
	EnsureDefaultAssets(ctx context.Context) error
	ListCategories(ctx context.Context, owner string) ([]core.Category, error)
	CategoryByID(ctx context.Context, owner string, id int64) (*core.Category, error)
	CategoriesByIDs(ctx context.Context, owner string, ids []int64) ([]core.Category, error)
	CategoryByName(ctx context.Context, owner, name string, kind core.Kind) (*core.Category, error)
	CreateCategory(ctx context.Context, cat core.Category) (core.Category, error)
	AssetByID(ctx context.Context, id int64) (*core.Asset, error)
	CreateBill(ctx context.Context, bill core.Bill) (core.Bill, error)
	TotalAmount(ctx context.Context, f storage.BillFilter) (core.Money, error)
	CategoryTotals(ctx context.Context, f storage.BillFilter) ([]core.CategoryBreakdown, error)
	TopBills(ctx context.Context, f storage.BillFilter, limit int) ([]core.Bill, error)
	BillPoints(ctx context.Context, f storage.BillFilter) ([]core.BillPoint, error)
}

var _ Store = (*storage.SQLiteRepository)(nil)

// resolveCategoryName maps an optional category reference to a display name.
// A nil id is the uncategorized sentinel; a dangling id yields a descriptive
// name and the caller proceeds, it is not an error.
func resolveCategoryName(ctx context.Context, store Store, owner string, id *int64) (*core.Category, string, error) {
	if id == nil {
		return nil, core.UncategorizedLabel, nil
	}
	cat, err := store.CategoryByID(ctx, owner, *id)
	if err != nil {
		return nil, "", fmt.Errorf("resolve category %d: %w", *id, err)
	}
	if cat == nil {
		return nil, fmt.Sprintf("unknown category: %d", *id), nil
	}
	return cat, cat.Name, nil
}

// uniqueCategoryIDs dedupes an id list preserving first-seen order.
func uniqueCategoryIDs(ids []int64) []int64 {
	if ids == nil {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// validateCategorySelection resolves the selected ids against the owner's
// categories, failing with ErrUnknownCategory when any id does not exist.
func validateCategorySelection(ctx context.Context, store Store, owner string, ids []int64) ([]core.Category, error) {
	cats, err := store.CategoriesByIDs(ctx, owner, ids)
	if err != nil {
		return nil, fmt.Errorf("load selected categories: %w", err)
	}
	if len(cats) != len(ids) {
		found := make(map[int64]struct{}, len(cats))
		for _, c := range cats {
			found[c.ID] = struct{}{}
		}
		var missing []int64
		for _, id := range ids {
			if _, ok := found[id]; !ok {
				missing = append(missing, id)
			}
		}
		return nil, fmt.Errorf("%w: %v", core.ErrUnknownCategory, missing)
	}
	return cats, nil
}
