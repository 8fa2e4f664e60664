package schedule

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"etbd/internal/model"
)

// ResponseClassBounds describes the half-open range [Lower, Upper) a response
// class is drawn from, minus the half-open [ExcludedLower, ExcludedUpper).
type ResponseClassBounds struct {
	Lower         int
	Upper         int
	Size          int
	ExcludedLower int
	ExcludedUpper int
}

// ResponseClass is a fixed set of phenotypes sampled once without replacement.
type ResponseClass struct {
	members map[int]struct{}
	values  []int
}

// Eligible counts the phenotypes a class with these bounds can draw from.
func (b ResponseClassBounds) Eligible() int {
	n := max(b.Upper-b.Lower, 0)
	lo := max(b.ExcludedLower, b.Lower)
	hi := min(b.ExcludedUpper, b.Upper)
	if hi > lo {
		n -= hi - lo
	}
	return n
}

// Validate reports model.ErrConfiguration when the bounds cannot yield Size
// distinct phenotypes.
func (b ResponseClassBounds) Validate() error {
	if b.Size <= 0 {
		return fmt.Errorf("%w: response class size must be > 0", model.ErrConfiguration)
	}
	if n := b.Eligible(); n < b.Size {
		return fmt.Errorf("%w: response class needs %d values but [%d, %d) minus [%d, %d) only offers %d",
			model.ErrConfiguration, b.Size, b.Lower, b.Upper, b.ExcludedLower, b.ExcludedUpper, n)
	}
	return nil
}

func NewResponseClass(rng *rand.Rand, bounds ResponseClassBounds) (ResponseClass, error) {
	if err := bounds.Validate(); err != nil {
		return ResponseClass{}, err
	}
	eligible := make([]int, 0, bounds.Eligible())
	for v := bounds.Lower; v < bounds.Upper; v++ {
		if v >= bounds.ExcludedLower && v < bounds.ExcludedUpper {
			continue
		}
		eligible = append(eligible, v)
	}

	rng.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})
	values := eligible[:bounds.Size:bounds.Size]
	slices.Sort(values)

	members := make(map[int]struct{}, len(values))
	for _, v := range values {
		members[v] = struct{}{}
	}
	return ResponseClass{members: members, values: values}, nil
}

func (rc ResponseClass) Contains(phenotype int) bool {
	_, ok := rc.members[phenotype]
	return ok
}

func (rc ResponseClass) Len() int {
	return len(rc.values)
}

// Values returns the members in ascending order.
func (rc ResponseClass) Values() []int {
	return append([]int(nil), rc.values...)
}

// Overlaps reports whether the two classes share a phenotype.
func (rc ResponseClass) Overlaps(other ResponseClass) bool {
	small, large := rc, other
	if small.Len() > large.Len() {
		small, large = large, small
	}
	for _, v := range small.values {
		if large.Contains(v) {
			return true
		}
	}
	return false
}
