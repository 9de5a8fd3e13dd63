package geo

import "math"

// CircularMean computes the weighted circular mean of bearings (degrees)
// and the concentration statistic R. The mean is normalized to [0, 360).
// R is 1 when all bearings agree and approaches 0 when they are scattered;
// it is the standard resultant-length statistic for angular data, which
// handles the wraparound at 360 correctly where an arithmetic mean would not.
// Weights must be non-negative; with no positive weight both results are 0.
func CircularMean(bearingsDeg, weights []float64) (mean, r float64) {
	var sinSum, cosSum, weightSum float64

	for i, b := range bearingsDeg {
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		if w <= 0 {
			continue
		}
		rad := toRad(b)
		sinSum += w * math.Sin(rad)
		cosSum += w * math.Cos(rad)
		weightSum += w
	}

	if weightSum == 0 {
		return 0, 0
	}

	mean = math.Mod(toDeg(math.Atan2(sinSum, cosSum))+360.0, 360.0)
	r = math.Hypot(sinSum, cosSum) / weightSum
	return mean, r
}

// StdDev returns the population standard deviation of the values.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - avg
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values)))
}
