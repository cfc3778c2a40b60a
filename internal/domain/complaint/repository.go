// internal/domain/complaint/repository.go
package complaint

import "context"

// Repository defines the complaint store operations the engine depends on.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Complaint, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	// ListNonTerminal returns every complaint that is neither resolved nor rejected.
	ListNonTerminal(ctx context.Context) ([]*Complaint, error)

	// Timeline methods. Actions are never updated or deleted.
	AppendAction(ctx context.Context, action *Action) error
	CountActions(ctx context.Context, complaintID string, actionType ActionType) (int, error)
	ListActions(ctx context.Context, complaintID string) ([]*Action, error)
}
