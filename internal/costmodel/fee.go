package costmodel

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"tradesim/internal/orderbook"
)

// FeeTier is one row of the venue fee table.
type FeeTier struct {
	Name string          `json:"name"`
	Rate decimal.Decimal `json:"rate"`
}

// FeeSchedule is an ordered tier table, lowest rank first. Rates never
// increase with rank.
type FeeSchedule struct {
	tiers []FeeTier
	rank  map[string]int
}

func NewFeeSchedule(tiers []FeeTier) (*FeeSchedule, error) {
	if len(tiers) == 0 {
		return nil, errors.New("costmodel: empty fee tier table")
	}
	s := &FeeSchedule{tiers: make([]FeeTier, len(tiers)), rank: make(map[string]int, len(tiers))}
	copy(s.tiers, tiers)
	for i, t := range tiers {
		if t.Name == "" {
			return nil, fmt.Errorf("costmodel: fee tier %d has no name", i)
		}
		if _, dup := s.rank[t.Name]; dup {
			return nil, fmt.Errorf("costmodel: fee tier %q listed twice", t.Name)
		}
		if t.Rate.Sign() < 0 {
			return nil, fmt.Errorf("costmodel: fee tier %q has negative rate %s", t.Name, t.Rate)
		}
		if i > 0 && t.Rate.GreaterThan(tiers[i-1].Rate) {
			return nil, fmt.Errorf("costmodel: fee tier %q rate %s exceeds lower tier %q rate %s", t.Name, t.Rate, tiers[i-1].Name, tiers[i-1].Rate)
		}
		s.rank[t.Name] = i
	}
	return s, nil
}

func (s *FeeSchedule) Rate(tier string) (decimal.Decimal, error) {
	i, ok := s.rank[tier]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownFeeTier, tier)
	}
	return s.tiers[i].Rate, nil
}

// Rank is the position of tier in the table, or -1.
func (s *FeeSchedule) Rank(tier string) int {
	if i, ok := s.rank[tier]; ok {
		return i
	}
	return -1
}

func (s *FeeSchedule) Has(tier string) bool { return s.Rank(tier) >= 0 }

func (s *FeeSchedule) Tiers() []FeeTier {
	out := make([]FeeTier, len(s.tiers))
	copy(out, s.tiers)
	return out
}

// Fee charges QuantityUSD times the tier rate. The book is not consulted.
type Fee struct {
	Schedule *FeeSchedule
}

func (Fee) Kind() Kind { return KindFee }

func (m Fee) Evaluate(_ orderbook.Snapshot, p OrderParams) (Value, error) {
	if err := p.Validate(); err != nil {
		return Value{}, err
	}
	rate, err := m.Schedule.Rate(p.FeeTier)
	if err != nil {
		return Value{}, err
	}
	return Value{Kind: KindFee, Rate: rate, USD: p.QuantityUSD.Mul(rate)}, nil
}
