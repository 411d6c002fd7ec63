package postgres

import (
	"context"

	appctx "recordshop/internal/core/context"
)

// requestIDFrom returns the request id of ctx for correlation columns, or
// nil outside a request.
func requestIDFrom(ctx context.Context) *string {
	if rid := appctx.RequestID(ctx); rid != "" {
		return &rid
	}
	return nil
}
