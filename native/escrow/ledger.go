package escrow

import (
	"math/big"
)

// fundedThrough returns the cumulative amount required for milestones
// [0, index].
func fundedThrough(eng *Engagement, index uint64) *big.Int {
	sum := big.NewInt(0)
	for i := uint64(0); i <= index && i < eng.MilestoneCount(); i++ {
		sum.Add(sum, eng.Amounts[i])
	}
	return sum
}

func isFunded(eng *Engagement, balance *big.Int, index uint64) (bool, error) {
	if index >= eng.MilestoneCount() {
		return false, ErrInvalidMilestone
	}
	if index < eng.Milestone {
		return true, nil
	}
	available := new(big.Int).Add(cloneBigInt(eng.Released), cloneBigInt(balance))
	return available.Cmp(fundedThrough(eng, index)) >= 0, nil
}

func isFullyFunded(eng *Engagement, balance *big.Int) bool {
	if eng.Milestone >= eng.MilestoneCount() {
		return true
	}
	available := new(big.Int).Add(cloneBigInt(eng.Released), cloneBigInt(balance))
	return available.Cmp(eng.Total()) >= 0
}

// IsFunded reports whether released value plus the current balance covers
// every milestone up to and including index.
func (e *Engine) IsFunded(id [32]byte, index uint64) (bool, error) {
	var funded bool
	err := e.view(id, func(eng *Engagement, balance *big.Int) error {
		var err error
		funded, err = isFunded(eng, balance, index)
		return err
	})
	return funded, err
}

// IsFullyFunded reports whether the whole schedule is covered.
func (e *Engine) IsFullyFunded(id [32]byte) (bool, error) {
	var funded bool
	err := e.view(id, func(eng *Engagement, balance *big.Int) error {
		funded = isFullyFunded(eng, balance)
		return nil
	})
	return funded, err
}

// Amounts returns a copy of the milestone schedule.
func (e *Engine) Amounts(id [32]byte) ([]*big.Int, error) {
	var out []*big.Int
	err := e.view(id, func(eng *Engagement, _ *big.Int) error {
		out = eng.Clone().Amounts
		return nil
	})
	return out, err
}

// Total returns the sum of the milestone schedule.
func (e *Engine) Total(id [32]byte) (*big.Int, error) {
	var out *big.Int
	err := e.view(id, func(eng *Engagement, _ *big.Int) error {
		out = eng.Total()
		return nil
	})
	return out, err
}
