package sheets

import (
	"context"

	"tally/internal/core"
)

// BillAppender writes one bill to the external ledger sheet and returns an
// opaque row reference for logging.
type BillAppender interface {
	Append(ctx context.Context, bill core.Bill, categoryName string) (rowRef string, err error)
}
