package httpapi

import (
	"context"
)

// shutdownCtx is canceled when the daemon stops. Long-polling handlers such
// as POST /block give up when it is done.
var shutdownCtx = context.Background()

// SetBaseContext sets the daemon lifetime context. nil resets it to
// Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		shutdownCtx = context.Background()
		return
	}
	shutdownCtx = ctx
}

// untilShutdown derives a context from the request that is also canceled
// when the daemon stops. The cancel func must be called when the handler
// returns.
func untilShutdown(req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(req)
	stop := context.AfterFunc(shutdownCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
