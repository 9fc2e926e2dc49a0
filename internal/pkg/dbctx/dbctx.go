package dbctx

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/chatlore-backend/internal/pkg/ctxutil"
)

// Context bundles a request context with an optional GORM transaction.
// Repos fall back to their own *gorm.DB when Tx is nil.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// New wraps a plain context with no transaction.
func New(ctx context.Context) Context {
	return Context{Ctx: ctxutil.Default(ctx)}
}

// WithTx binds a transaction for the duration of a multi-statement operation.
func WithTx(ctx context.Context, tx *gorm.DB) Context {
	return Context{Ctx: ctx, Tx: tx}
}
