package lending

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"creditpool/core/events"
)

func defaultPolicy(t *testing.T) Policy {
	t.Helper()
	policy, err := DefaultConfig().Policy()
	require.NoError(t, err)
	return policy
}

func TestCollateralRatioTiers(t *testing.T) {
	policy := defaultPolicy(t)
	cases := []struct {
		score uint64
		want  uint64
	}{
		{1000, 11_000},
		{800, 11_000},
		{799, 13_000},
		{600, 13_000},
		{599, 15_000},
		{400, 15_000},
		{300, 18_000},
		{200, 18_000},
		{199, 20_000},
		{100, 20_000},
	}
	for _, tc := range cases {
		if got := policy.CollateralRatio(tc.score); got != tc.want {
			t.Fatalf("CollateralRatio(%d) = %d, want %d", tc.score, got, tc.want)
		}
	}
}

func TestCollateralTiersSortedRegardlessOfConfigOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CollateralTiers = []CollateralTier{
		{MinScore: 200, RatioBps: 18_000},
		{MinScore: 800, RatioBps: 11_000},
	}
	policy, err := cfg.Policy()
	require.NoError(t, err)
	require.Equal(t, uint64(11_000), policy.CollateralRatio(900))
	require.Equal(t, uint64(18_000), policy.CollateralRatio(500))
}

func TestBorrowInterestRate(t *testing.T) {
	policy := defaultPolicy(t)
	require.Equal(t, uint64(500), policy.BorrowInterestRate(0))
	require.Equal(t, uint64(500), policy.BorrowInterestRate(99))
	require.Equal(t, uint64(470), policy.BorrowInterestRate(300))
	require.Equal(t, uint64(470), policy.BorrowInterestRate(399))
	require.Equal(t, uint64(400), policy.BorrowInterestRate(1000))

	cfg := DefaultConfig()
	cfg.BaseRateBps = 50
	policy, err := cfg.Policy()
	require.NoError(t, err)
	require.Zero(t, policy.BorrowInterestRate(1000))
}

func TestRequiredCollateralRoundsDown(t *testing.T) {
	policy := defaultPolicy(t)
	required, err := policy.RequiredCollateral(uint256.NewInt(7), 300)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(12), required)
}

func TestOnTimeIncreaseEscalates(t *testing.T) {
	policy := defaultPolicy(t)
	emitter := &recordingEmitter{}
	profile := newCreditProfile(common.HexToAddress("0x01"), 300)

	var increments []uint64
	for i := 0; i < 22; i++ {
		before := profile.Score
		policy.recordRepayment(profile, true, emitter)
		increments = append(increments, profile.Score-before)
	}
	require.Equal(t, uint64(22), profile.OnTimePayments)
	for i, inc := range increments {
		count := i + 1
		switch {
		case count > 20:
			require.Equal(t, uint64(20), inc, "payment %d", count)
		case count > 10:
			require.Equal(t, uint64(15), inc, "payment %d", count)
		default:
			require.Equal(t, uint64(10), inc, "payment %d", count)
		}
	}
	require.Len(t, emitter.events, 22)
}

func TestScoreBounds(t *testing.T) {
	policy := defaultPolicy(t)
	emitter := &recordingEmitter{}

	high := newCreditProfile(common.HexToAddress("0x01"), 995)
	policy.recordRepayment(high, true, emitter)
	require.Equal(t, uint64(1000), high.Score)
	policy.recordRepayment(high, true, emitter)
	require.Equal(t, uint64(1000), high.Score)
	require.Len(t, emitter.events, 1, "unchanged score must not emit")

	low := newCreditProfile(common.HexToAddress("0x02"), 120)
	policy.recordRepayment(low, false, emitter)
	require.Equal(t, uint64(100), low.Score)
	require.NoError(t, policy.recordLiquidation(low, uint256.NewInt(1), emitter))
	require.Equal(t, uint64(100), low.Score)
}

func TestLateDecreaseEscalates(t *testing.T) {
	policy := defaultPolicy(t)
	profile := newCreditProfile(common.HexToAddress("0x01"), 1000)
	for i := 0; i < 5; i++ {
		policy.recordRepayment(profile, false, events.NoopEmitter{})
	}
	require.Equal(t, uint64(850), profile.Score)
	policy.recordRepayment(profile, false, events.NoopEmitter{})
	require.Equal(t, uint64(800), profile.Score)
	require.Equal(t, uint64(6), profile.LatePayments)
}

func TestBlacklistLatchIsOneWay(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlacklistThreshold = "100"
	policy, err := cfg.Policy()
	require.NoError(t, err)
	emitter := &recordingEmitter{}
	profile := newCreditProfile(common.HexToAddress("0x01"), 900)

	require.NoError(t, policy.recordLiquidation(profile, uint256.NewInt(100), emitter))
	require.False(t, profile.Blacklisted, "threshold must be exceeded, not met")
	require.NoError(t, policy.recordLiquidation(profile, uint256.NewInt(1), emitter))
	require.True(t, profile.Blacklisted)
	require.NoError(t, policy.recordLiquidation(profile, uint256.NewInt(1), emitter))
	require.True(t, profile.Blacklisted)
	require.Len(t, emitter.ofType(events.TypeBorrowerBlacklisted), 1)
	require.Equal(t, uint64(300), profile.Score)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cases := map[string]func(*Config){
		"raw default ratio":   func(c *Config) { c.DefaultCollateralRatioBps = 200 },
		"tier below par":      func(c *Config) { c.CollateralTiers = []CollateralTier{{MinScore: 1, RatioBps: 9_999}} },
		"fee above 100%":      func(c *Config) { c.ProtocolFeeBps = 10_001 },
		"default score range": func(c *Config) { c.DefaultScore = 50 },
		"zero duration":       func(c *Config) { c.LoanDurationSeconds = 0 },
		"bad threshold":       func(c *Config) { c.BlacklistThreshold = "ten" },
		"bad asset":           func(c *Config) { c.Assets = []AssetConfig{{Address: "not-an-address"}} },
		"duplicate asset": func(c *Config) {
			c.Assets = []AssetConfig{{Address: "native"}, {Address: "0x0000000000000000000000000000000000000000"}}
		},
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestEnsureDefaultsFillsZeroValues(t *testing.T) {
	var cfg Config
	cfg.EnsureDefaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, uint64(DefaultLoanDurationSeconds), cfg.LoanDurationSeconds)
	require.Equal(t, uint64(300), cfg.DefaultScore)
	require.Len(t, cfg.CollateralTiers, 4)
}
