package measure

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"
)

// BER returns the upper bound on the bit error rate at the given confidence
// level after observing nerr errors in ntot bits. It solves for the error
// probability whose binomial tail matches the confidence, the standard
// way BER testers turn an error count into a quotable number.
func BER(confidence float64, ntot, nerr int) (float64, error) {
	if confidence <= 0 || confidence >= 1 {
		return 0, fmt.Errorf("measure: confidence %g out of range (0, 1)", confidence)
	}
	if ntot <= 0 {
		return 0, fmt.Errorf("measure: ntot must be positive, got %d", ntot)
	}
	if nerr < 0 || nerr > ntot {
		return 0, fmt.Errorf("measure: nerr %d out of range [0, %d]", nerr, ntot)
	}

	target := 1 - confidence

	// P(errors <= nerr) falls monotonically with p, bisect on it
	tail := func(p float64) float64 {
		dist := distuv.Binomial{N: float64(ntot), P: p}
		return dist.CDF(float64(nerr)) - target
	}

	lo, hi := 0.0, 0.5
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if tail(mid) > 0 {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo < 1e-15 {
			break
		}
	}
	return (lo + hi) / 2, nil
}
