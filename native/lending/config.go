package lending

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CollateralTier maps a minimum credit score to the collateral ratio, in
// basis points of the borrowed amount, required at or above that score.
type CollateralTier struct {
	MinScore uint64 `toml:"MinScore"`
	RatioBps uint64 `toml:"RatioBps"`
}

// ScoreStep adjusts a score by Points once the relevant payment counter is
// strictly greater than After.
type ScoreStep struct {
	After  uint64 `toml:"After"`
	Points uint64 `toml:"Points"`
}

// AssetConfig registers an asset when the daemon boots.
type AssetConfig struct {
	Address        string `toml:"Address"`
	MaxBorrowLimit string `toml:"MaxBorrowLimit"`
}

// Config captures the tunable lending parameters loaded from TOML.
type Config struct {
	LoanDurationSeconds       uint64           `toml:"LoanDurationSeconds"`
	SecondsPerYear            uint64           `toml:"SecondsPerYear"`
	BaseRateBps               uint64           `toml:"BaseRateBps"`
	DiscountPer100Bps         uint64           `toml:"DiscountPer100Bps"`
	ProtocolFeeBps            uint64           `toml:"ProtocolFeeBps"`
	DefaultScore              uint64           `toml:"DefaultScore"`
	MinScore                  uint64           `toml:"MinScore"`
	MaxScore                  uint64           `toml:"MaxScore"`
	LiquidationPenalty        uint64           `toml:"LiquidationPenalty"`
	BlacklistThreshold        string           `toml:"BlacklistThreshold"`
	DefaultCollateralRatioBps uint64           `toml:"DefaultCollateralRatioBps"`
	CollateralTiers           []CollateralTier `toml:"CollateralTiers"`
	OnTimeSteps               []ScoreStep      `toml:"OnTimeSteps"`
	LateSteps                 []ScoreStep      `toml:"LateSteps"`
	Assets                    []AssetConfig    `toml:"Assets"`
}

const (
	DefaultLoanDurationSeconds = 30 * 24 * 60 * 60
	DefaultSecondsPerYear      = 365 * 24 * 60 * 60
	// DefaultBlacklistThreshold is 1,000 whole units of an 18-decimal asset.
	DefaultBlacklistThreshold = "1000000000000000000000"
)

// DefaultConfig returns the production parameter set.
func DefaultConfig() Config {
	return Config{
		LoanDurationSeconds:       DefaultLoanDurationSeconds,
		SecondsPerYear:            DefaultSecondsPerYear,
		BaseRateBps:               500,
		DiscountPer100Bps:         10,
		ProtocolFeeBps:            50,
		DefaultScore:              300,
		MinScore:                  100,
		MaxScore:                  1000,
		LiquidationPenalty:        200,
		BlacklistThreshold:        DefaultBlacklistThreshold,
		DefaultCollateralRatioBps: 20_000,
		CollateralTiers: []CollateralTier{
			{MinScore: 800, RatioBps: 11_000},
			{MinScore: 600, RatioBps: 13_000},
			{MinScore: 400, RatioBps: 15_000},
			{MinScore: 200, RatioBps: 18_000},
		},
		OnTimeSteps: []ScoreStep{
			{After: 0, Points: 10},
			{After: 10, Points: 15},
			{After: 20, Points: 20},
		},
		LateSteps: []ScoreStep{
			{After: 0, Points: 30},
			{After: 5, Points: 50},
		},
	}
}

// EnsureDefaults fills zero-valued fields with their defaults.
func (c *Config) EnsureDefaults() {
	def := DefaultConfig()
	if c.LoanDurationSeconds == 0 {
		c.LoanDurationSeconds = def.LoanDurationSeconds
	}
	if c.SecondsPerYear == 0 {
		c.SecondsPerYear = def.SecondsPerYear
	}
	if c.BaseRateBps == 0 {
		c.BaseRateBps = def.BaseRateBps
	}
	if c.DefaultScore == 0 {
		c.DefaultScore = def.DefaultScore
	}
	if c.MinScore == 0 {
		c.MinScore = def.MinScore
	}
	if c.MaxScore == 0 {
		c.MaxScore = def.MaxScore
	}
	if strings.TrimSpace(c.BlacklistThreshold) == "" {
		c.BlacklistThreshold = def.BlacklistThreshold
	}
	if c.DefaultCollateralRatioBps == 0 {
		c.DefaultCollateralRatioBps = def.DefaultCollateralRatioBps
	}
	if len(c.CollateralTiers) == 0 {
		c.CollateralTiers = def.CollateralTiers
	}
	if len(c.OnTimeSteps) == 0 {
		c.OnTimeSteps = def.OnTimeSteps
	}
	if len(c.LateSteps) == 0 {
		c.LateSteps = def.LateSteps
	}
}

// Validate performs sanity checks on the configuration values.
func (c Config) Validate() error {
	if c.LoanDurationSeconds == 0 {
		return errors.New("LoanDurationSeconds must be positive")
	}
	if c.SecondsPerYear == 0 {
		return errors.New("SecondsPerYear must be positive")
	}
	if c.ProtocolFeeBps > basisPoints {
		return fmt.Errorf("ProtocolFeeBps must not exceed %d", basisPoints)
	}
	if c.MinScore > c.MaxScore {
		return errors.New("MinScore must not exceed MaxScore")
	}
	if c.DefaultScore < c.MinScore || c.DefaultScore > c.MaxScore {
		return errors.New("DefaultScore must lie within [MinScore, MaxScore]")
	}
	if c.DefaultCollateralRatioBps < basisPoints {
		return fmt.Errorf("DefaultCollateralRatioBps must be at least %d", basisPoints)
	}
	for i, tier := range c.CollateralTiers {
		if tier.RatioBps < basisPoints {
			return fmt.Errorf("CollateralTiers[%d].RatioBps must be at least %d", i, basisPoints)
		}
	}
	if len(c.OnTimeSteps) == 0 {
		return errors.New("OnTimeSteps must not be empty")
	}
	if len(c.LateSteps) == 0 {
		return errors.New("LateSteps must not be empty")
	}
	if _, err := parseAmount(c.BlacklistThreshold); err != nil {
		return fmt.Errorf("BlacklistThreshold: %w", err)
	}
	seen := make(map[common.Address]struct{}, len(c.Assets))
	for i, asset := range c.Assets {
		addr, _, err := asset.Parse()
		if err != nil {
			return fmt.Errorf("Assets[%d]: %w", i, err)
		}
		if _, dup := seen[addr]; dup {
			return fmt.Errorf("Assets[%d]: duplicate asset %s", i, addr.Hex())
		}
		seen[addr] = struct{}{}
	}
	return nil
}

// Parse decodes the asset address and borrow limit. The literal "native"
// selects NativeAsset.
func (a AssetConfig) Parse() (common.Address, *uint256.Int, error) {
	raw := strings.TrimSpace(a.Address)
	var addr common.Address
	switch {
	case strings.EqualFold(raw, "native"):
		addr = NativeAsset
	case common.IsHexAddress(raw):
		addr = common.HexToAddress(raw)
	default:
		return common.Address{}, nil, fmt.Errorf("invalid address %q", a.Address)
	}
	limit, err := parseAmount(a.MaxBorrowLimit)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("MaxBorrowLimit: %w", err)
	}
	return addr, limit, nil
}

func parseAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	value, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return value, nil
}

// Policy is the validated runtime form of Config.
type Policy struct {
	LoanDuration              uint64
	SecondsPerYear            uint64
	BaseRateBps               uint64
	DiscountPer100Bps         uint64
	ProtocolFeeBps            uint64
	DefaultScore              uint64
	MinScore                  uint64
	MaxScore                  uint64
	LiquidationPenalty        uint64
	BlacklistThreshold        *uint256.Int
	DefaultCollateralRatioBps uint64
	tiers                     []CollateralTier
	onTime                    []ScoreStep
	late                      []ScoreStep
}

// Policy validates the configuration and converts it to its runtime form.
func (c Config) Policy() (Policy, error) {
	if err := c.Validate(); err != nil {
		return Policy{}, err
	}
	threshold, _ := parseAmount(c.BlacklistThreshold)
	tiers := append([]CollateralTier(nil), c.CollateralTiers...)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].MinScore > tiers[j].MinScore })
	onTime := append([]ScoreStep(nil), c.OnTimeSteps...)
	sort.SliceStable(onTime, func(i, j int) bool { return onTime[i].After < onTime[j].After })
	late := append([]ScoreStep(nil), c.LateSteps...)
	sort.SliceStable(late, func(i, j int) bool { return late[i].After < late[j].After })
	return Policy{
		LoanDuration:              c.LoanDurationSeconds,
		SecondsPerYear:            c.SecondsPerYear,
		BaseRateBps:               c.BaseRateBps,
		DiscountPer100Bps:         c.DiscountPer100Bps,
		ProtocolFeeBps:            c.ProtocolFeeBps,
		DefaultScore:              c.DefaultScore,
		MinScore:                  c.MinScore,
		MaxScore:                  c.MaxScore,
		LiquidationPenalty:        c.LiquidationPenalty,
		BlacklistThreshold:        threshold,
		DefaultCollateralRatioBps: c.DefaultCollateralRatioBps,
		tiers:                     tiers,
		onTime:                    onTime,
		late:                      late,
	}, nil
}
