// Copyright (c) 2025, pricefanout contributors. All rights reserved.
// See the file LICENSE for licensing terms.

package priceengine

import "math"

// RejectOutliers implements spec.md §4.4 "Outlier rejection": for n ≤ 2
// samples, return the input unchanged; otherwise drop samples more than
// 2 standard deviations from the mean, falling back to the original set
// if that would reject everything.
func RejectOutliers(samples []float64) []float64 {
	if len(samples) <= 2 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}

	mean, stddev := meanStddev(samples)

	var retained []float64
	for _, s := range samples {
		if math.Abs(s-mean) <= 2*stddev {
			retained = append(retained, s)
		}
	}

	if len(retained) == 0 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out
	}
	return retained
}

func meanStddev(samples []float64) (mean, stddev float64) {
	n := float64(len(samples))
	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean = sum / n

	var variance float64
	for _, s := range samples {
		d := s - mean
		variance += d * d
	}
	variance /= n
	stddev = math.Sqrt(variance)
	return mean, stddev
}
