package lending

import (
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	nativecommon "creditpool/native/common"
)

func TestRandomisedOperationsPreserveInvariants(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	rng := rand.New(rand.NewSource(7))
	actors := []common.Address{alice, bob, carol}

	for step := 0; step < 600; step++ {
		actor := actors[rng.Intn(len(actors))]
		var err error
		switch rng.Intn(6) {
		case 0:
			_, err = h.engine.Deposit(h.ctx, tokenCall(actor), token, u(uint64(rng.Intn(10_000)+1)))
		case 1:
			shares, _ := h.engine.SharesOf(token, actor)
			if !shares.IsZero() {
				portion := shares.Uint64()/uint64(rng.Intn(4)+1) + 1
				_, err = h.engine.Withdraw(h.ctx, tokenCall(actor), token, u(portion))
			}
		case 2:
			amount := uint64(rng.Intn(2_000) + 1)
			_, err = h.engine.Borrow(h.ctx, tokenCall(actor), BorrowRequest{Asset: token, Amount: u(amount), CollateralAsset: token, CollateralAmount: u(amount * 2)})
		case 3:
			positions, _ := h.engine.Positions(actor)
			if len(positions) > 0 {
				_, err = h.engine.Repay(h.ctx, tokenCall(actor), uint64(rng.Intn(len(positions))), u(uint64(rng.Intn(3_000)+1)))
			}
		case 4:
			borrower := actors[rng.Intn(len(actors))]
			positions, _ := h.engine.Positions(borrower)
			if len(positions) > 0 {
				_, err = h.engine.Liquidate(h.ctx, tokenCall(actor), borrower, uint64(rng.Intn(len(positions))))
			}
		case 5:
			h.clock.advance(uint64(rng.Intn(10 * 24 * 60 * 60)))
		}
		if err != nil {
			require.NotEqual(t, nativecommon.KindUnknown, nativecommon.KindOf(err), "step %d: unclassified error %v", step, err)
		}

		pool := h.pool(t, token)
		require.False(t, pool.TotalReserves.Lt(pool.TotalBorrowed), "step %d: reserves below borrowed", step)
		require.Equal(t, pool.TotalReserves, pool.Ledger.TotalAssets(), "step %d: ledger out of sync", step)

		outstanding := u(0)
		for _, addr := range actors {
			positions, err := h.engine.Positions(addr)
			require.NoError(t, err)
			for _, pos := range positions {
				if pos.IsActive() {
					outstanding.Add(outstanding, pos.BorrowedAmount)
				}
			}
			profile, err := h.engine.Profile(addr)
			require.NoError(t, err)
			if profile != nil {
				require.GreaterOrEqual(t, profile.Score, uint64(100))
				require.LessOrEqual(t, profile.Score, uint64(1000))
			}
		}
		require.Equal(t, pool.TotalBorrowed, outstanding, "step %d: borrowed total drifted", step)
	}
}
