package cluster

import "math"

func validPoints(amounts, commissions []float64) ([][2]float64, []int) {
	pts := make([][2]float64, 0, len(amounts))
	idx := make([]int, 0, len(amounts))
	for i := range amounts {
		a, c := amounts[i], commissions[i]
		if a <= 0 || math.IsNaN(a) || math.IsInf(a, 0) || math.IsNaN(c) || math.IsInf(c, 0) {
			continue
		}
		pts = append(pts, [2]float64{a, c})
		idx = append(idx, i)
	}
	return pts, idx
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// median expects xs already sorted ascending.
func median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return xs[n/2]
	}
	return (xs[n/2-1] + xs[n/2]) / 2
}

// stdDev is the population standard deviation.
func stdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
