package lending

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"creditpool/storage"
)

// TransferKind distinguishes value flowing into the pool from value paid out.
type TransferKind uint8

const (
	// TransferPull moves value from Account into the pool.
	TransferPull TransferKind = iota + 1
	// TransferPush moves value from the pool to Account.
	TransferPush
)

func (k TransferKind) String() string {
	switch k {
	case TransferPull:
		return "pull"
	case TransferPush:
		return "push"
	default:
		return "unknown"
	}
}

// Transfer is a single value movement between an account and the pool.
type Transfer struct {
	Kind    TransferKind
	Asset   common.Address
	Account common.Address
	Amount  *uint256.Int
}

// Vault moves value between accounts and the pool. Pulls of NativeAsset
// represent value attached to the call.
//
// Prepare checks the whole batch against current balances and holds it until
// the returned Settlement is committed or discarded. Nothing is visible to
// other readers before Commit.
type Vault interface {
	Prepare(ctx context.Context, transfers []Transfer) (Settlement, error)
}

// Settlement is a transfer batch accepted by a Vault. Exactly one of Commit or
// Discard must be called.
type Settlement interface {
	// Stage adds the balance records of the batch to b. A vault without
	// persistence stages nothing.
	Stage(b storage.Batch)
	// Commit publishes the batch. When Stage was not called the vault
	// persists the balances itself.
	Commit() error
	Discard()
}

// BatchState is a State sharing its database with the vault, so records and
// balances commit in a single batch.
type BatchState interface {
	State
	NewBatch() storage.Batch
	Stage(b storage.Batch, changes *ChangeSet) error
}

type noSettlement struct{}

func (noSettlement) Stage(storage.Batch) {}

func (noSettlement) Commit() error { return nil }

func (noSettlement) Discard() {}

// Call identifies the caller of a mutating operation and the native value
// attached to it.
type Call struct {
	Sender common.Address
	Value  *uint256.Int
}

func (c Call) value() *uint256.Int { return amountOrZero(c.Value) }

func (c Call) hasValue() bool { return !isZero(c.Value) }

type inFlightKey struct{}

func withInFlight(ctx context.Context) context.Context {
	return context.WithValue(ctx, inFlightKey{}, true)
}

// InFlight reports whether ctx was issued by the engine while preparing a
// settlement. Mutating calls made with such a context are rejected.
func InFlight(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(inFlightKey{}).(bool)
	return v
}
