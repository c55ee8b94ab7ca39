package escrow

import (
	"context"
	"errors"
)

var (
	// ErrNotFound signals the requested contract does not exist.
	ErrNotFound = errors.New("escrow: contract not found")
	// ErrExists signals a contract id collision on create.
	ErrExists = errors.New("escrow: contract already exists")
)

// Store is the persistence abstraction the engine runs on. Implementations
// must provide read-your-writes consistency and apply Update atomically: the
// mutation closure either commits as a whole or leaves the record untouched.
// The engine never depends on a specific storage technology.
type Store interface {
	Create(ctx context.Context, rec EscrowContract) error
	Get(ctx context.Context, id string) (EscrowContract, error)
	Update(ctx context.Context, id string, fn func(*EscrowContract) error) (EscrowContract, error)

	// Link adds a contract to an account's index. The index is additive and
	// never pruned.
	Link(ctx context.Context, account, contractID string) error
	ListByAccount(ctx context.Context, account string) ([]EscrowContract, error)
}
