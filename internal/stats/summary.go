package stats

import "github.com/shopspring/decimal"

// summary is a running count/sum/min/max over the valid values of one field.
type summary struct {
	n        int
	sum      float64
	min, max float64
}

func (s *summary) add(v float64) {
	if s.n == 0 || v < s.min {
		s.min = v
	}
	if s.n == 0 || v > s.max {
		s.max = v
	}
	s.n++
	s.sum += v
}

func (s summary) empty() bool { return s.n == 0 }

// mean is 0 for an empty summary.
func (s summary) mean() float64 {
	if s.n == 0 {
		return 0
	}
	return s.sum / float64(s.n)
}

// meanPtr is nil for an empty summary.
func (s summary) meanPtr() *float64 {
	if s.n == 0 {
		return nil
	}
	m := round2(s.mean())
	return &m
}

// round2 rounds half away from zero to two decimal places.
func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func round2Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round2(*v)
	return &r
}
