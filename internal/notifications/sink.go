package notifications

import (
	"context"
)

// Sink delivers one event to one channel. Send must honour ctx.
type Sink interface {
	Name() string
	Send(ctx context.Context, event Event) error
}
