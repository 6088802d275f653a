package sheets

import (
	"context"

	"tally/internal/core"
)

// StatementWriter mirrors committed transactions to an external statement,
// e.g. a Google Sheets spreadsheet. Mirroring is best-effort and runs
// outside the request path.
type StatementWriter interface {
	AppendStatement(ctx context.Context, t core.Transaction) (rowRef string, err error)
}
