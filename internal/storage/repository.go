// Package storage implements the SQLite bill store behind the ledger
// services. All mutating operations run inside a transaction; reads go
// straight to the pooled handle.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tally/internal/core"

	_ "modernc.org/sqlite"
)

// timeLayout is the canonical TEXT encoding of timestamps. Second precision
// keeps range comparisons lexicographic.
const timeLayout = "2006-01-02 15:04:05"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" && !strings.HasPrefix(dbPath, ":") {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single writer connection sidesteps SQLITE_BUSY and keeps in-memory
	// databases, which exist per connection, coherent.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Ping reports whether the database is still reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func fmtTime(t time.Time) string {
	return core.NaiveWallClock(t).Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// BillFilter scopes aggregate queries. A nil CategoryIDs means all
// categories; callers short-circuit empty non-nil lists before reaching the
// store.
type BillFilter struct {
	Owner       string
	Kind        core.Kind
	Start       time.Time
	End         time.Time
	CategoryIDs []int64
}

func (f BillFilter) where() (string, []any) {
	clauses := []string{"b.user_id = ?", "b.kind = ?", "b.created_at >= ?", "b.created_at < ?"}
	args := []any{f.Owner, string(f.Kind), fmtTime(f.Start), fmtTime(f.End)}
	if f.CategoryIDs != nil {
		placeholders := make([]string, len(f.CategoryIDs))
		for i, id := range f.CategoryIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		clauses = append(clauses, fmt.Sprintf("b.category_id IN (%s)", strings.Join(placeholders, ", ")))
	}
	return strings.Join(clauses, " AND "), args
}

// EnsureDefaultCategories idempotently seeds the default category set for an
// owner. Rows whose (owner, name) already exist are reconciled against the
// seed's description, color and kind instead of being duplicated.
func (r *SQLiteRepository) EnsureDefaultCategories(ctx context.Context, owner string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, seed := range defaultCategories {
		var (
			id                int64
			desc, color, kind string
		)
		err := tx.QueryRowContext(ctx,
			`SELECT id, description, color, kind FROM categories WHERE user_id = ? AND name = ? LIMIT 1`,
			owner, seed.Name,
		).Scan(&id, &desc, &color, &kind)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO categories (user_id, name, description, color, kind) VALUES (?, ?, ?, ?, ?)`,
				owner, seed.Name, seed.Description, seed.Color, string(seed.Kind),
			); err != nil {
				return fmt.Errorf("insert default category %q: %w", seed.Name, err)
			}
		case err != nil:
			return fmt.Errorf("lookup default category %q: %w", seed.Name, err)
		default:
			if desc != seed.Description || color != seed.Color || kind != string(seed.Kind) {
				if _, err := tx.ExecContext(ctx,
					`UPDATE categories SET description = ?, color = ?, kind = ? WHERE id = ?`,
					seed.Description, seed.Color, string(seed.Kind), id,
				); err != nil {
					return fmt.Errorf("reconcile default category %q: %w", seed.Name, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// EnsureDefaultAssets idempotently seeds the global asset table.
func (r *SQLiteRepository) EnsureDefaultAssets(ctx context.Context) error {
	for _, seed := range defaultAssets {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO assets (name, description) VALUES (?, ?)
			 ON CONFLICT (name) DO UPDATE SET description = excluded.description`,
			seed.Name, seed.Description,
		); err != nil {
			return fmt.Errorf("seed asset %q: %w", seed.Name, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, owner string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, description, color, kind FROM categories WHERE user_id = ? ORDER BY id ASC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	return collectCategories(rows)
}

func (r *SQLiteRepository) CategoryByID(ctx context.Context, owner string, id int64) (*core.Category, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, description, color, kind FROM categories WHERE user_id = ? AND id = ?`,
		owner, id,
	)
	cat, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category %d: %w", id, err)
	}
	return &cat, nil
}

func (r *SQLiteRepository) CategoriesByIDs(ctx context.Context, owner string, ids []int64) ([]core.Category, error) {
	if len(ids) == 0 {
		return []core.Category{}, nil
	}
	placeholders := make([]string, len(ids))
	args := []any{owner}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, user_id, name, description, color, kind FROM categories
			WHERE user_id = ? AND id IN (%s) ORDER BY id ASC`, strings.Join(placeholders, ", ")),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("get categories by ids: %w", err)
	}
	defer rows.Close()
	return collectCategories(rows)
}

func (r *SQLiteRepository) CategoryByName(ctx context.Context, owner, name string, kind core.Kind) (*core.Category, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, description, color, kind FROM categories
		 WHERE user_id = ? AND name = ? AND kind = ?`,
		owner, name, string(kind),
	)
	cat, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category %q: %w", name, err)
	}
	return &cat, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, cat core.Category) (core.Category, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (user_id, name, description, color, kind) VALUES (?, ?, ?, ?, ?)`,
		cat.Owner, cat.Name, cat.Description, cat.Color, string(cat.Kind),
	)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category %q: %w", cat.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Category{}, fmt.Errorf("category insert id: %w", err)
	}
	cat.ID = id
	return cat, nil
}

func (r *SQLiteRepository) AssetByID(ctx context.Context, id int64) (*core.Asset, error) {
	var a core.Asset
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description FROM assets WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset %d: %w", id, err)
	}
	return &a, nil
}

func (r *SQLiteRepository) AssetByName(ctx context.Context, name string) (*core.Asset, error) {
	var a core.Asset
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description FROM assets WHERE name = ?`, name,
	).Scan(&a.ID, &a.Name, &a.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset %q: %w", name, err)
	}
	return &a, nil
}

// CreateBill persists a bill inside one transaction and returns the stored
// representation with the generated id and timestamps. A zero CreatedAt is
// filled with the current wall-clock time.
func (r *SQLiteRepository) CreateBill(ctx context.Context, bill core.Bill) (core.Bill, error) {
	createdAt := bill.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Bill{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO bills (user_id, amount_cents, kind, description, category_id,
			source_asset_id, target_asset_id, source_amount_cents, target_amount_cents,
			created_at, updated_at, sync_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending')`,
		bill.Owner, bill.Amount.Cents, string(bill.Kind), bill.Description,
		nullID(bill.CategoryID), nullID(bill.SourceAssetID), nullID(bill.TargetAssetID),
		nullCents(bill.SourceAmount), nullCents(bill.TargetAmount),
		fmtTime(createdAt), fmtTime(createdAt),
	)
	if err != nil {
		return core.Bill{}, fmt.Errorf("insert bill: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Bill{}, fmt.Errorf("bill insert id: %w", err)
	}

	stored, err := scanBill(tx.QueryRowContext(ctx, selectBill+` WHERE b.id = ?`, id))
	if err != nil {
		return core.Bill{}, fmt.Errorf("read back bill %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return core.Bill{}, fmt.Errorf("commit tx: %w", err)
	}
	return stored, nil
}

func (r *SQLiteRepository) Bill(ctx context.Context, id int64) (*core.Bill, error) {
	bill, err := scanBill(r.db.QueryRowContext(ctx, selectBill+` WHERE b.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bill %d: %w", id, err)
	}
	return &bill, nil
}

// TotalAmount sums matching bill amounts; zero when nothing matches.
func (r *SQLiteRepository) TotalAmount(ctx context.Context, f BillFilter) (core.Money, error) {
	where, args := f.where()
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(b.amount_cents), 0) FROM bills b WHERE `+where, args...,
	).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("total amount: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

// CategoryTotals groups matching bills by category, ordered by total
// descending. Percentages are left at zero; the caller applies them over the
// final row set. Bills without a category come back with a nil CategoryID
// and the uncategorized sentinel name. The join is owner-constrained, so a
// bill referencing another owner's category falls back to the sentinel
// instead of that owner's category name.
func (r *SQLiteRepository) CategoryTotals(ctx context.Context, f BillFilter) ([]core.CategoryBreakdown, error) {
	where, args := f.where()
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.category_id, COALESCE(c.name, ?), COALESCE(c.color, ''), SUM(b.amount_cents)
		 FROM bills b LEFT JOIN categories c ON b.category_id = c.id AND c.user_id = b.user_id
		 WHERE `+where+`
		 GROUP BY b.category_id, c.name, c.color
		 ORDER BY SUM(b.amount_cents) DESC`,
		append([]any{core.UncategorizedLabel}, args...)...,
	)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	defer rows.Close()

	breakdown := []core.CategoryBreakdown{}
	for rows.Next() {
		var (
			catID sql.NullInt64
			row   core.CategoryBreakdown
		)
		if err := rows.Scan(&catID, &row.CategoryName, &row.Color, &row.Total.Cents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		if catID.Valid {
			id := catID.Int64
			row.CategoryID = &id
		}
		breakdown = append(breakdown, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("category totals rows: %w", err)
	}
	return breakdown, nil
}

// TopBills returns matching bills ordered by amount descending with ties
// broken by id ascending, so the order is deterministic.
func (r *SQLiteRepository) TopBills(ctx context.Context, f BillFilter, limit int) ([]core.Bill, error) {
	where, args := f.where()
	rows, err := r.db.QueryContext(ctx,
		selectBill+` WHERE `+where+` ORDER BY b.amount_cents DESC, b.id ASC LIMIT ?`,
		append(args, limit)...,
	)
	if err != nil {
		return nil, fmt.Errorf("top bills: %w", err)
	}
	defer rows.Close()

	bills := []core.Bill{}
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top bills rows: %w", err)
	}
	return bills, nil
}

// BillPoints projects matching bills to (timestamp, amount) pairs for the
// time bucketer.
func (r *SQLiteRepository) BillPoints(ctx context.Context, f BillFilter) ([]core.BillPoint, error) {
	where, args := f.where()
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.created_at, b.amount_cents FROM bills b WHERE `+where+` ORDER BY b.created_at ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("bill points: %w", err)
	}
	defer rows.Close()

	points := []core.BillPoint{}
	for rows.Next() {
		var (
			createdAt string
			p         core.BillPoint
		)
		if err := rows.Scan(&createdAt, &p.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan bill point: %w", err)
		}
		at, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse bill timestamp %q: %w", createdAt, err)
		}
		p.At = at
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bill points rows: %w", err)
	}
	return points, nil
}

// PendingExportBills returns bills not yet exported to the external sheet,
// oldest first.
func (r *SQLiteRepository) PendingExportBills(ctx context.Context, limit int) ([]core.Bill, error) {
	rows, err := r.db.QueryContext(ctx,
		selectBill+` WHERE b.sync_status = 'pending' ORDER BY b.id ASC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("pending export bills: %w", err)
	}
	defer rows.Close()

	bills := []core.Bill{}
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending bill: %w", err)
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending bills rows: %w", err)
	}
	return bills, nil
}

// MarkExported marks a bill as successfully exported.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id int64) error {
	now := fmtTime(time.Now())
	if _, err := r.db.ExecContext(ctx,
		`UPDATE bills SET sync_status = 'synced', synced_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	); err != nil {
		return fmt.Errorf("mark bill %d exported: %w", id, err)
	}
	return nil
}

// MarkExportError marks a bill as having failed export.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE bills SET sync_status = 'error', updated_at = ? WHERE id = ?`,
		fmtTime(time.Now()), id,
	); err != nil {
		return fmt.Errorf("mark bill %d export error: %w", id, err)
	}
	return nil
}

const selectBill = `SELECT b.id, b.user_id, b.amount_cents, b.kind, b.description,
	b.category_id, b.source_asset_id, b.target_asset_id,
	b.source_amount_cents, b.target_amount_cents, b.created_at, b.updated_at
	FROM bills b`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (core.Bill, error) {
	var (
		bill                 core.Bill
		categoryID           sql.NullInt64
		sourceID, targetID   sql.NullInt64
		sourceAmt, targetAmt sql.NullInt64
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&bill.ID, &bill.Owner, &bill.Amount.Cents, &bill.Kind, &bill.Description,
		&categoryID, &sourceID, &targetID, &sourceAmt, &targetAmt,
		&createdAt, &updatedAt,
	); err != nil {
		return core.Bill{}, err
	}
	bill.CategoryID = idPtr(categoryID)
	bill.SourceAssetID = idPtr(sourceID)
	bill.TargetAssetID = idPtr(targetID)
	bill.SourceAmount = centsPtr(sourceAmt)
	bill.TargetAmount = centsPtr(targetAmt)

	var err error
	if bill.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Bill{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	if bill.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Bill{}, fmt.Errorf("parse updated_at %q: %w", updatedAt, err)
	}
	return bill, nil
}

func collectCategories(rows *sql.Rows) ([]core.Category, error) {
	categories := []core.Category{}
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("categories rows: %w", err)
	}
	return categories, nil
}

func scanCategory(row rowScanner) (core.Category, error) {
	var cat core.Category
	err := row.Scan(&cat.ID, &cat.Owner, &cat.Name, &cat.Description, &cat.Color, &cat.Kind)
	return cat, err
}

func nullID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullCents(m *core.Money) any {
	if m == nil {
		return nil
	}
	return m.Cents
}

func idPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func centsPtr(v sql.NullInt64) *core.Money {
	if !v.Valid {
		return nil
	}
	return &core.Money{Cents: v.Int64}
}
