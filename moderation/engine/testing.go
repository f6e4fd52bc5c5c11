package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/sbnz-social/modguard/moderation/eventstore"
	"github.com/sbnz-social/modguard/moderation/suspendstore"
	"github.com/sbnz-social/modguard/moderation/userdir"
)

// Engine over in-memory stores with the clock fixed at now. Each userID is registered in the directory, in order.
func EngineTestFixture(now time.Time, userIDs ...string) *Engine {
	dir := userdir.NewMemDirectory()
	for _, uid := range userIDs {
		dir.AddUser(context.Background(), userdir.User{ID: uid})
	}
	return &Engine{
		Logger:      slog.Default(),
		Users:       dir,
		Events:      eventstore.NewMemEventStore(),
		Suspensions: suspendstore.NewMemSuspendStore(),
		Now:         func() time.Time { return now },
		Concurrency: 2,
	}
}
