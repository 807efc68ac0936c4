package shares

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"creditpool/core/events"
)

var (
	testAsset   = common.HexToAddress("0xa55e7")
	controller  = common.HexToAddress("0xc0")
	alice       = common.HexToAddress("0xa1")
	bob         = common.HexToAddress("0xb0")
	outsider    = common.HexToAddress("0xdead")
	zeroAccount = common.Address{}
)

type eventLog struct {
	types []string
}

func (e *eventLog) Emit(evt events.Event) { e.types = append(e.types, evt.EventType()) }

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func mustMint(t *testing.T, l *Ledger, to common.Address, assets uint64) *uint256.Int {
	t.Helper()
	shares, err := l.Mint(controller, to, u(assets))
	if err != nil {
		t.Fatalf("mint %d: %v", assets, err)
	}
	return shares
}

func checkSupply(t *testing.T, l *Ledger) {
	t.Helper()
	sum := new(uint256.Int)
	for _, bal := range l.balances {
		sum.Add(sum, bal)
	}
	if !sum.Eq(l.totalShares) {
		t.Fatalf("sum of balances %s != total shares %s", sum, l.totalShares)
	}
}

func TestMintBootstrapAndProportional(t *testing.T) {
	l := New(testAsset, controller)
	if got := mustMint(t, l, alice, 1000); !got.Eq(u(1000)) {
		t.Fatalf("bootstrap mint: got %s want 1000", got)
	}
	if got := mustMint(t, l, bob, 500); !got.Eq(u(500)) {
		t.Fatalf("second mint: got %s want 500", got)
	}
	if !l.TotalShares().Eq(u(1500)) || !l.TotalAssets().Eq(u(1500)) {
		t.Fatalf("unexpected totals: shares=%s assets=%s", l.TotalShares(), l.TotalAssets())
	}
	checkSupply(t, l)
}

func TestRebaseRaisesRedeemableValue(t *testing.T) {
	l := New(testAsset, controller)
	mustMint(t, l, alice, 1000)
	if err := l.Rebase(controller, u(1500)); err != nil {
		t.Fatalf("rebase: %v", err)
	}
	if got := l.RedeemableValue(alice); !got.Eq(u(1500)) {
		t.Fatalf("redeemable value: got %s want 1500", got)
	}
}

func TestRebaseNeverDecreases(t *testing.T) {
	l := New(testAsset, controller)
	mustMint(t, l, alice, 1000)
	for _, caller := range []common.Address{controller, outsider, zeroAccount} {
		if err := l.Rebase(caller, u(999)); !errors.Is(err, ErrRebaseDecrease) {
			t.Fatalf("caller %s: expected ErrRebaseDecrease, got %v", caller.Hex(), err)
		}
	}
	if !l.TotalAssets().Eq(u(1000)) {
		t.Fatalf("total assets changed: %s", l.TotalAssets())
	}
}

func TestMutationsRequireController(t *testing.T) {
	l := New(testAsset, controller)
	mustMint(t, l, alice, 100)

	if _, err := l.Mint(outsider, alice, u(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("mint: expected ErrUnauthorized, got %v", err)
	}
	if _, err := l.Burn(outsider, alice, u(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("burn: expected ErrUnauthorized, got %v", err)
	}
	if err := l.Rebase(outsider, u(200)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("rebase: expected ErrUnauthorized, got %v", err)
	}
	if _, err := l.TransferValue(outsider, alice, bob, u(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("transfer: expected ErrUnauthorized, got %v", err)
	}
}

func TestInputValidation(t *testing.T) {
	l := New(testAsset, controller)
	if _, err := l.Mint(controller, zeroAccount, u(1)); !errors.Is(err, ErrNullAccount) {
		t.Fatalf("expected ErrNullAccount, got %v", err)
	}
	if _, err := l.Mint(controller, alice, u(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("expected ErrZeroAmount, got %v", err)
	}
	mustMint(t, l, alice, 10)
	if _, err := l.Burn(controller, alice, u(11)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	if _, err := l.Burn(controller, zeroAccount, u(1)); !errors.Is(err, ErrNullAccount) {
		t.Fatalf("expected ErrNullAccount, got %v", err)
	}
	if _, err := l.TransferValue(controller, alice, zeroAccount, u(1)); !errors.Is(err, ErrNullAccount) {
		t.Fatalf("expected ErrNullAccount, got %v", err)
	}
}

func TestMintRejectsDustAfterRateGrowth(t *testing.T) {
	l := New(testAsset, controller)
	mustMint(t, l, alice, 1)
	if err := l.Rebase(controller, u(100)); err != nil {
		t.Fatalf("rebase: %v", err)
	}
	if _, err := l.Mint(controller, bob, u(99)); !errors.Is(err, ErrZeroShares) {
		t.Fatalf("expected ErrZeroShares, got %v", err)
	}
}

func TestRoundTripNeverReturnsMore(t *testing.T) {
	l := New(testAsset, controller)
	shares := mustMint(t, l, alice, 777)
	back, err := l.Burn(controller, alice, shares)
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if !back.Eq(u(777)) {
		t.Fatalf("bootstrap round trip: got %s want 777", back)
	}

	mustMint(t, l, alice, 1000)
	if err := l.Rebase(controller, u(1333)); err != nil {
		t.Fatalf("rebase: %v", err)
	}
	for _, amount := range []uint64{2, 3, 7, 10, 333, 1000} {
		minted := mustMint(t, l, bob, amount)
		got, err := l.Burn(controller, bob, minted)
		if err != nil {
			t.Fatalf("burn: %v", err)
		}
		if got.Gt(u(amount)) {
			t.Fatalf("round trip of %d returned %s", amount, got)
		}
	}
	checkSupply(t, l)
}

func TestTransferValueUsesCurrentRate(t *testing.T) {
	l := New(testAsset, controller)
	mustMint(t, l, alice, 1000)
	if err := l.Rebase(controller, u(2000)); err != nil {
		t.Fatalf("rebase: %v", err)
	}
	moved, err := l.TransferValue(controller, alice, bob, u(500))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !moved.Eq(u(250)) {
		t.Fatalf("moved shares: got %s want 250", moved)
	}
	if got := l.RedeemableValue(bob); !got.Eq(u(500)) {
		t.Fatalf("bob value: got %s want 500", got)
	}
	if _, err := l.TransferValue(controller, bob, alice, u(502)); !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	checkSupply(t, l)
}

func TestRandomSequencesKeepSupplyInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	l := New(testAsset, controller)
	holders := []common.Address{alice, bob, common.HexToAddress("0xc1"), common.HexToAddress("0xc2")}
	for i := 0; i < 2000; i++ {
		holder := holders[rng.Intn(len(holders))]
		before := l.RedeemableValue(holder)
		switch rng.Intn(4) {
		case 0:
			_, _ = l.Mint(controller, holder, u(uint64(rng.Intn(10_000)+1)))
		case 1:
			bal := l.SharesOf(holder)
			if !bal.IsZero() {
				burn := new(uint256.Int).Mod(u(rng.Uint64()), bal)
				burn.AddUint64(burn, 1)
				if _, err := l.Burn(controller, holder, burn); err != nil {
					t.Fatalf("burn: %v", err)
				}
			}
		case 2:
			target := new(uint256.Int).AddUint64(l.TotalAssets(), uint64(rng.Intn(500)))
			if err := l.Rebase(controller, target); err != nil {
				t.Fatalf("rebase: %v", err)
			}
			if after := l.RedeemableValue(holder); after.Lt(before) {
				t.Fatalf("rebase lowered redeemable value from %s to %s", before, after)
			}
		case 3:
			to := holders[rng.Intn(len(holders))]
			_, _ = l.TransferValue(controller, holder, to, u(uint64(rng.Intn(1000)+1)))
		}
		checkSupply(t, l)
	}
}

func TestEventsEmitted(t *testing.T) {
	l := New(testAsset, controller)
	log := &eventLog{}
	l.SetEmitter(log)
	mustMint(t, l, alice, 10)
	if len(log.types) != 2 || log.types[0] != events.TypeSharesMinted || log.types[1] != events.TypeShareBalanceChanged {
		t.Fatalf("unexpected mint events: %v", log.types)
	}
}

func TestJSONRoundTripAndClone(t *testing.T) {
	l := New(testAsset, controller)
	mustMint(t, l, alice, 1000)
	mustMint(t, l, bob, 250)
	if err := l.Rebase(controller, u(1400)); err != nil {
		t.Fatalf("rebase: %v", err)
	}
	raw, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored Ledger
	if err := json.Unmarshal(raw, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !restored.TotalAssets().Eq(u(1400)) || !restored.SharesOf(bob).Eq(u(250)) || restored.Controller() != controller {
		t.Fatalf("restored ledger mismatch: %s", raw)
	}

	clone := l.Clone()
	if _, err := clone.Mint(controller, alice, u(5)); err != nil {
		t.Fatalf("mint on clone: %v", err)
	}
	if !l.SharesOf(alice).Eq(u(1000)) {
		t.Fatalf("clone mutation leaked into original")
	}
}
