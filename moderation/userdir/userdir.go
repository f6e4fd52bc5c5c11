package userdir

import (
	"context"
)

type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
}

// Read-only view of registered users.
type Directory interface {
	// All known user ids, in a stable order.
	ListAllUsers(ctx context.Context) ([]string, error)
	// Returns an error wrapping event.ErrUnknownUser if the id is not registered.
	LookupUser(ctx context.Context, userID string) (*User, error)
}

// Directory that can also register users. Used by seeding and tests; production deployments typically point at an externally managed table.
type Registry interface {
	Directory
	AddUser(ctx context.Context, u User) error
}
