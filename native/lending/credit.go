package lending

import (
	"github.com/holiman/uint256"

	"creditpool/core/events"
)

const (
	reasonOnTime      = "on_time_repayment"
	reasonLate        = "late_repayment"
	reasonLiquidation = "liquidation"
)

// CollateralRatio returns the collateral requirement for the score in basis
// points of the borrowed amount.
func (p Policy) CollateralRatio(score uint64) uint64 {
	for _, tier := range p.tiers {
		if score >= tier.MinScore {
			return tier.RatioBps
		}
	}
	return p.DefaultCollateralRatioBps
}

// BorrowInterestRate returns the annual rate, in basis points, offered to a
// borrower with the given score.
func (p Policy) BorrowInterestRate(score uint64) uint64 {
	discount := (score / 100) * p.DiscountPer100Bps
	if discount >= p.BaseRateBps {
		return 0
	}
	return p.BaseRateBps - discount
}

// RequiredCollateral returns amount * CollateralRatio(score) / 10000.
func (p Policy) RequiredCollateral(amount *uint256.Int, score uint64) (*uint256.Int, error) {
	return bpsOf(amount, p.CollateralRatio(score))
}

func stepPoints(steps []ScoreStep, count uint64) uint64 {
	if len(steps) == 0 {
		return 0
	}
	points := steps[0].Points
	for _, step := range steps {
		if count > step.After {
			points = step.Points
		}
	}
	return points
}

func (p Policy) clampScore(score uint64) uint64 {
	if score < p.MinScore {
		return p.MinScore
	}
	if score > p.MaxScore {
		return p.MaxScore
	}
	return score
}

func (p Policy) raise(score, points uint64) uint64 {
	if score+points < score || score+points > p.MaxScore {
		return p.MaxScore
	}
	return p.clampScore(score + points)
}

func (p Policy) lower(score, points uint64) uint64 {
	if points >= score || score-points < p.MinScore {
		return p.MinScore
	}
	return p.clampScore(score - points)
}

// recordRepayment increments the payment counter matching the outcome and
// applies the positive or negative score branch.
func (p Policy) recordRepayment(profile *CreditProfile, onTime bool, emitter events.Emitter) {
	previous := profile.Score
	reason := reasonOnTime
	if onTime {
		profile.OnTimePayments++
		profile.Score = p.raise(profile.Score, stepPoints(p.onTime, profile.OnTimePayments))
	} else {
		reason = reasonLate
		profile.LatePayments++
		profile.Score = p.lower(profile.Score, stepPoints(p.late, profile.LatePayments))
	}
	emitScoreChange(emitter, profile, previous, reason)
}

// recordLiquidation applies the liquidation branch and closes the blacklist
// latch once lifetime liquidated principal exceeds the threshold.
func (p Policy) recordLiquidation(profile *CreditProfile, principal *uint256.Int, emitter events.Emitter) error {
	total, err := addAmount(profile.LiquidatedPrincipal, principal)
	if err != nil {
		return err
	}
	profile.LiquidatedPrincipal = total
	previous := profile.Score
	profile.Score = p.lower(profile.Score, p.LiquidationPenalty)
	emitScoreChange(emitter, profile, previous, reasonLiquidation)
	if !profile.Blacklisted && p.BlacklistThreshold != nil && total.Gt(p.BlacklistThreshold) {
		profile.blacklist()
		emitter.Emit(events.BorrowerBlacklisted{Borrower: profile.Address, LiquidatedPrincipal: copyAmount(total)})
	}
	return nil
}

func emitScoreChange(emitter events.Emitter, profile *CreditProfile, previous uint64, reason string) {
	if profile.Score == previous {
		return
	}
	emitter.Emit(events.CreditScoreUpdated{
		Borrower: profile.Address,
		Previous: previous,
		Current:  profile.Score,
		Reason:   reason,
	})
}
