package ledger

import (
	"context"
	"fmt"
)

// Client is the ledger collaborator: it watches the storage account and
// submits compaction transactions for it.
type Client interface {
	// Subscribe opens a change subscription for the storage account.
	Subscribe(ctx context.Context) (Subscription, error)
	// FetchAccountState reads the current storage account state.
	FetchAccountState(ctx context.Context) (*AccountState, error)
	// SubmitCompaction submits a garbage collection transaction signed by
	// the compaction authority and returns its signature.
	SubmitCompaction(ctx context.Context) (string, error)
	// AccountExists probes whether the storage account has been created.
	AccountExists(ctx context.Context) (Existence, error)
}

// Subscription delivers account states until it fails or is closed.
type Subscription interface {
	// Updates delivers decoded account states, one per change.
	Updates() <-chan *AccountState
	// Done is closed once the subscription stops delivering, after which
	// Err reports why.
	Done() <-chan struct{}
	Err() error
	// Close tears the subscription down. It is safe to call more than once.
	Close() error
}

// Existence is the outcome of an existence probe. Unknown means the probe
// itself failed and says nothing about the account.
type Existence int

const (
	Unknown Existence = iota
	Exists
	NotFound
)

func (e Existence) String() string {
	switch e {
	case Exists:
		return "exists"
	case NotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

// RequireAccount turns an existence probe into a startup check.
func RequireAccount(ctx context.Context, client Client) error {
	existence, err := client.AccountExists(ctx)
	switch existence {
	case Exists:
		return nil
	case NotFound:
		return fmt.Errorf("storage account has not been created")
	default:
		return fmt.Errorf("unable to determine whether storage account exists: %w", err)
	}
}
