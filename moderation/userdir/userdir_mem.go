package userdir

import (
	"context"
	"fmt"
	"sync"

	"github.com/sbnz-social/modguard/moderation/event"
)

// In-process directory. ListAllUsers returns ids in registration order.
type MemDirectory struct {
	mu    sync.RWMutex
	order []string
	users map[string]User
}

var _ Registry = (*MemDirectory)(nil)

func NewMemDirectory(users ...User) *MemDirectory {
	d := &MemDirectory{users: make(map[string]User)}
	for _, u := range users {
		d.AddUser(context.Background(), u)
	}
	return d
}

func (d *MemDirectory) AddUser(ctx context.Context, u User) error {
	if u.ID == "" {
		return fmt.Errorf("user id is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[u.ID]; !ok {
		d.order = append(d.order, u.ID)
	}
	d.users[u.ID] = u
	return nil
}

func (d *MemDirectory) ListAllUsers(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out, nil
}

func (d *MemDirectory) LookupUser(ctx context.Context, userID string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", event.ErrUnknownUser, userID)
	}
	return &u, nil
}
