package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"creditpool/core/events"
	nativecommon "creditpool/native/common"
)

const moduleName = "lending"

// ModuleName is the identifier consulted on the pause view.
const ModuleName = moduleName

// Metrics receives per-operation telemetry from the engine.
type Metrics interface {
	ObserveOperation(op, outcome string, duration time.Duration)
	ObservePool(asset common.Address, reserves, borrowed, fees *uint256.Int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, string, time.Duration) {}

func (noopMetrics) ObservePool(common.Address, *uint256.Int, *uint256.Int, *uint256.Int) {}

// Engine runs the pooled lending state machine. Mutating operations are
// serialised and either commit in full or leave State untouched. A mutating
// call made while the engine is waiting on its vault fails with
// ErrReentrantCall, whatever context it carries.
type Engine struct {
	address common.Address
	policy  Policy
	state   State
	vault   Vault
	clock   Clock
	pauses  nativecommon.PauseView
	owners  nativecommon.OwnerView
	emitter events.Emitter
	metrics Metrics
	logger  *slog.Logger
	mu      sync.Mutex
	// settling is set while the vault holds a prepared batch.
	settling atomic.Bool
}

// NewEngine constructs an engine whose address controls every pool's share
// ledger. The engine starts with an in-memory state and the system clock.
func NewEngine(address common.Address, cfg Config) (*Engine, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, fmt.Errorf("lending engine: invalid config: %w", err)
	}
	return &Engine{
		address: address,
		policy:  policy,
		state:   NewMemoryState(),
		clock:   &SystemClock{},
		emitter: events.NoopEmitter{},
		metrics: noopMetrics{},
		logger:  slog.Default(),
	}, nil
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state State) { e.state = state }

// SetVault configures the value transfer collaborator.
func (e *Engine) SetVault(vault Vault) { e.vault = vault }

func (e *Engine) SetClock(clock Clock) {
	if clock == nil {
		clock = &SystemClock{}
	}
	e.clock = clock
}

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetOwners configures the owner predicate. Without one every admin call is
// rejected.
func (e *Engine) SetOwners(o nativecommon.OwnerView) { e.owners = o }

// SetEmitter routes committed events to emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetMetrics(m Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	e.metrics = m
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// Address returns the controller address of the pools' share ledgers.
func (e *Engine) Address() common.Address { return e.address }

// Policy returns the credit and interest parameters in force.
func (e *Engine) Policy() Policy { return e.policy }

func (e *Engine) now() uint64 { return e.clock.Now() }

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return nativecommon.KindOf(err).String()
}

// execute runs fn against a fresh transaction, has the vault accept the
// accumulated transfers, commits records and balances together and finally
// publishes the buffered events.
func (e *Engine) execute(ctx context.Context, op string, fn func(tx *txn) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	defer func() {
		e.metrics.ObserveOperation(op, outcomeOf(err), time.Since(start))
	}()
	if InFlight(ctx) || e.settling.Load() {
		return ErrReentrantCall
	}
	if e.state == nil {
		return errNilState
	}

	tx, err := e.run(ctx, op, fn)
	if err != nil {
		return err
	}
	tx.events.Flush(e.emitter)
	for asset, pool := range tx.pools {
		if pool != nil {
			e.metrics.ObservePool(asset, pool.TotalReserves, pool.TotalBorrowed, pool.AccumulatedProtocolFee)
		}
	}
	e.logger.Debug("lending operation committed", "op", op, "transfers", len(tx.transfers))
	return nil
}

func (e *Engine) run(ctx context.Context, op string, fn func(tx *txn) error) (*txn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx := newTxn(e.state)
	if err := fn(tx); err != nil {
		e.logger.Info("lending operation rejected", "op", op, "kind", outcomeOf(err), "error", err)
		return nil, err
	}
	if len(tx.transfers) > 0 && e.vault == nil {
		return nil, errNilVault
	}

	e.settling.Store(true)
	defer e.settling.Store(false)

	var settlement Settlement = noSettlement{}
	if len(tx.transfers) > 0 {
		prepared, err := e.vault.Prepare(withInFlight(ctx), tx.transfers)
		if err != nil {
			e.logger.Info("lending settlement failed", "op", op, "error", err)
			return nil, fmt.Errorf("lending engine: settle %s: %w", op, err)
		}
		settlement = prepared
	}
	if err := e.commit(tx, settlement); err != nil {
		e.logger.Error("lending commit failed", "op", op, "error", err)
		return nil, fmt.Errorf("lending engine: persist %s: %w", op, err)
	}
	return tx, nil
}

// commit writes the transaction's records and the settlement. A BatchState
// takes both in one batch; otherwise records are applied first and reverted
// if the settlement cannot be committed.
func (e *Engine) commit(tx *txn, settlement Settlement) error {
	changes := tx.changes()
	if bs, ok := e.state.(BatchState); ok {
		batch := bs.NewBatch()
		if err := bs.Stage(batch, changes); err != nil {
			settlement.Discard()
			return err
		}
		settlement.Stage(batch)
		if err := batch.Write(); err != nil {
			settlement.Discard()
			return err
		}
		return settlement.Commit()
	}
	if err := e.state.Apply(changes); err != nil {
		settlement.Discard()
		return err
	}
	if err := settlement.Commit(); err != nil {
		if rbErr := e.state.Apply(tx.rollback()); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	return nil
}

func requireSender(call Call) error {
	if call.Sender == (common.Address{}) {
		return ErrNullAddress
	}
	return nil
}

func requireNoValue(call Call) error {
	if call.hasValue() {
		return ErrUnexpectedValue
	}
	return nil
}

// Deposit supplies liquidity and mints pool shares to the caller. Native
// deposits take the attached call value and require a zero amount argument;
// token deposits pull amount from the caller.
func (e *Engine) Deposit(ctx context.Context, call Call, asset common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	var minted *uint256.Int
	err := e.execute(ctx, "deposit", func(tx *txn) error {
		if err := requireSender(call); err != nil {
			return err
		}
		pool, err := tx.pool(asset)
		if err != nil {
			return err
		}
		var deposit *uint256.Int
		if asset == NativeAsset {
			if !isZero(amount) {
				return ErrNativeValueMismatch
			}
			deposit = call.value()
		} else {
			if err := requireNoValue(call); err != nil {
				return err
			}
			deposit = amountOrZero(amount)
		}
		if deposit.IsZero() {
			return ErrInvalidAmount
		}
		reserves, err := addAmount(pool.TotalReserves, deposit)
		if err != nil {
			return err
		}
		shares, err := pool.Ledger.Mint(e.address, call.Sender, deposit)
		if err != nil {
			return err
		}
		pool.TotalReserves = reserves
		tx.pull(asset, call.Sender, deposit)
		tx.emit(events.Deposited{Asset: asset, Account: call.Sender, Amount: copyAmount(deposit), Shares: copyAmount(shares)})
		minted = shares
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// Withdraw burns shares and releases their value to the caller, provided the
// pool has enough unborrowed liquidity.
func (e *Engine) Withdraw(ctx context.Context, call Call, asset common.Address, shares *uint256.Int) (*uint256.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	var released *uint256.Int
	err := e.execute(ctx, "withdraw", func(tx *txn) error {
		if err := requireSender(call); err != nil {
			return err
		}
		if isZero(shares) {
			return ErrInvalidAmount
		}
		if err := requireNoValue(call); err != nil {
			return err
		}
		pool, err := tx.pool(asset)
		if err != nil {
			return err
		}
		assets, err := pool.Ledger.Burn(e.address, call.Sender, shares)
		if err != nil {
			return err
		}
		if assets.Gt(pool.AvailableLiquidity()) {
			return ErrInsufficientLiquidity
		}
		pool.TotalReserves = new(uint256.Int).Sub(pool.TotalReserves, assets)
		tx.push(asset, call.Sender, assets)
		tx.emit(events.Withdrawn{Asset: asset, Account: call.Sender, Shares: copyAmount(shares), Amount: copyAmount(assets)})
		released = assets
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

// TransferClaim moves amount of the caller's redeemable value in the pool to
// another account, converted to shares at the current rate.
func (e *Engine) TransferClaim(ctx context.Context, call Call, asset, to common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	var moved *uint256.Int
	err := e.execute(ctx, "transfer", func(tx *txn) error {
		if err := requireSender(call); err != nil {
			return err
		}
		if err := requireNoValue(call); err != nil {
			return err
		}
		pool, err := tx.pool(asset)
		if err != nil {
			return err
		}
		shares, err := pool.Ledger.TransferValue(e.address, call.Sender, to, amount)
		if err != nil {
			return err
		}
		moved = shares
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}
