package ports

import (
	"context"
	"errors"

	"github.com/Raaghu/collaboration/modules/accounts/domain/types"
)

var (
	ErrRowNotFound  = errors.New("accounts: row not found")
	ErrDuplicateRow = errors.New("accounts: duplicate row")
	ErrBadReference = errors.New("accounts: referenced row does not exist")
)

// EntityStore is the generic persistence collaborator. Rows are keyed by a
// server-assigned int64 primary key; filters and sort keys use column names.
// Implementations participate in transactions started by the coordinator
// through the context.
type EntityStore interface {
	Insert(ctx context.Context, table string, attrs types.Row) (int64, error)
	FindBy(ctx context.Context, table string, filters []types.Condition, sort []types.SortKey, page *types.Page, raw string) ([]types.Row, error)
	Update(ctx context.Context, table string, id int64, attrs types.Row) error
	DeleteRow(ctx context.Context, table string, id int64) error
}

// TransactionCoordinator runs fn inside a unit of work. A nested Execute
// joins the enclosing transaction; only the outermost call commits or
// aborts. On error the transaction is aborted and the original error is
// returned unchanged.
type TransactionCoordinator interface {
	Execute(ctx context.Context, readOnly bool, fn func(ctx context.Context) error) error
}
