package engine

import (
	"context"

	"github.com/sbnz-social/modguard/moderation/event"
)

// Interface for a type that can handle sending notifications about flags produced by a pass
type Notifier interface {
	SendFlags(ctx context.Context, flags []event.Flag) error
}
