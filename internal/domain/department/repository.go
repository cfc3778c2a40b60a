package department

import "context"

// Repository is the read-only department directory.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Department, error)
	ListAll(ctx context.Context) ([]*Department, error)
}
