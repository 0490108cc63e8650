package cluster

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/pastrop/feeaudit/internal/domain"
)

const (
	DefaultMaxClusters   = 5
	DefaultMaxIterations = 100
	DefaultSeed          = 42
)

// KMeansParams tunes the k-means analyzer. Zero values fall back to the
// defaults; a zero Seed means the default seed, so runs stay reproducible.
type KMeansParams struct {
	NumClusters    int // 0 picks k automatically
	MaxClusters    int
	MinClusterSize int
	MaxIterations  int
	Seed           int64
}

func (p *KMeansParams) applyDefaults() {
	if p.MaxClusters <= 0 {
		p.MaxClusters = DefaultMaxClusters
	}
	if p.MinClusterSize <= 0 {
		p.MinClusterSize = DefaultMinClusterSize
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = DefaultMaxIterations
	}
	if p.Seed == 0 {
		p.Seed = DefaultSeed
	}
}

// FitAssignment maps one input transaction to the fitted cluster model
// that best explains its commission. ClusterID is -1 for invalid rows.
type FitAssignment struct {
	Index               int      `json:"index"`
	Amount              float64  `json:"amount"`
	Commission          float64  `json:"commission"`
	ClusterID           int      `json:"cluster_id"`
	FittedRatePercent   *float64 `json:"fitted_rate_percent,omitempty"`
	MinimalFee          *float64 `json:"minimal_fee,omitempty"`
	PredictedCommission *float64 `json:"predicted_commission,omitempty"`
	Residual            *float64 `json:"residual,omitempty"`
}

// AnalyzeKMeans clusters transactions on z-score normalized
// (amount, commission) features, then fits commission ≈ rate*amount + fee
// per cluster by least squares. The intercept surfaces per-transaction
// minimal fees that a plain rate scan cannot see.
//
// When NumClusters is zero the cluster count is chosen automatically by
// minimizing the within-cluster variance ratio over 1..MaxClusters,
// rejecting any k whose smallest cluster falls under MinClusterSize.
// Fewer than MinClusterSize valid rows degrade to a single global fit.
func AnalyzeKMeans(amounts, commissions []float64, params KMeansParams) (*domain.ClusterReport, error) {
	if len(amounts) != len(commissions) {
		return nil, fmt.Errorf("amounts and commissions length mismatch: %d vs %d", len(amounts), len(commissions))
	}
	params.applyDefaults()

	report := &domain.ClusterReport{
		Algorithm:         domain.AlgorithmKMeans,
		TotalTransactions: len(amounts),
		Clusters:          []domain.RateCluster{},
		Params: domain.ClusterParams{
			MinClusterSize: params.MinClusterSize,
			MaxClusters:    params.MaxClusters,
			Seed:           params.Seed,
		},
	}

	pts, _ := validPoints(amounts, commissions)
	report.ValidTransactions = len(pts)
	if len(pts) == 0 {
		report.Error = "no valid transactions: every row has a non-positive or non-finite amount"
		return report, nil
	}

	if len(pts) < params.MinClusterSize {
		report.Params.NumClusters = 1
		report.Clusters = []domain.RateCluster{fitCluster(0, pts, len(pts))}
		report.ClusterCount = 1
		report.Summary = kmeansSummary(report.Clusters)
		return report, nil
	}

	normalized := normalize(pts)

	k := params.NumClusters
	if k <= 0 {
		k = chooseK(normalized, params)
	} else if lim := len(pts) / params.MinClusterSize; k > lim {
		k = lim
	}

	var labels []int
	if k <= 1 {
		k = 1
		labels = make([]int, len(pts))
	} else {
		labels, _ = lloyd(normalized, k, params.MaxIterations, params.Seed)
	}
	report.Params.NumClusters = k

	clusters := make([]domain.RateCluster, 0, k)
	for c := 0; c < k; c++ {
		var members [][2]float64
		for i, l := range labels {
			if l == c {
				members = append(members, pts[i])
			}
		}
		if len(members) == 0 {
			continue
		}
		clusters = append(clusters, fitCluster(c, members, len(pts)))
	}
	sort.SliceStable(clusters, func(a, b int) bool {
		return clusters[a].TransactionCount > clusters[b].TransactionCount
	})
	report.Clusters = clusters
	report.ClusterCount = len(clusters)
	report.Summary = kmeansSummary(clusters)
	return report, nil
}

// AssignKMeans returns per-transaction membership for the same analysis
// AnalyzeKMeans performs. Each row goes to the cluster whose fitted
// model predicts its commission with the smallest residual.
func AssignKMeans(amounts, commissions []float64, params KMeansParams) ([]FitAssignment, error) {
	report, err := AnalyzeKMeans(amounts, commissions, params)
	if err != nil {
		return nil, err
	}

	out := make([]FitAssignment, len(amounts))
	for i := range amounts {
		fa := FitAssignment{
			Index:      i,
			Amount:     amounts[i],
			Commission: commissions[i],
			ClusterID:  -1,
		}
		a, c := amounts[i], commissions[i]
		usable := a > 0 && !math.IsNaN(a) && !math.IsInf(a, 0) && !math.IsNaN(c) && !math.IsInf(c, 0)
		if usable && len(report.Clusters) > 0 {
			best := report.Clusters[0]
			bestResid := math.Inf(1)
			for _, cl := range report.Clusters {
				fee := 0.0
				if cl.MinimalFee != nil {
					fee = *cl.MinimalFee
				}
				if resid := math.Abs(c - (cl.RatePercent/100*a + fee)); resid < bestResid {
					bestResid = resid
					best = cl
				}
			}
			fee := 0.0
			if best.MinimalFee != nil {
				fee = *best.MinimalFee
			}
			rate := best.RatePercent
			pred := round(best.RatePercent/100*a+fee, 2)
			resid := round(c-pred, 2)
			fa.ClusterID = best.ID
			fa.FittedRatePercent = &rate
			fa.MinimalFee = best.MinimalFee
			fa.PredictedCommission = &pred
			fa.Residual = &resid
		}
		out[i] = fa
	}
	return out, nil
}

func fitCluster(id int, members [][2]float64, validTotal int) domain.RateCluster {
	xs := make([]float64, len(members))
	ys := make([]float64, len(members))
	rates := make([]float64, len(members))
	for i, m := range members {
		xs[i] = m[0]
		ys[i] = m[1]
		rates[i] = m[1] / m[0]
	}
	rate, fee, r2 := fitLinear(xs, ys)

	minFee := round(fee, 4)
	quality := round(r2, 4)
	apparent := round(mean(rates)*100, 4)
	spread := round(stdDev(rates)*100, 4)
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return domain.RateCluster{
		ID:                  id,
		RatePercent:         round(rate*100, 4),
		MinimalFee:          &minFee,
		TransactionCount:    len(members),
		PercentageOfTotal:   round(float64(len(members))/float64(validTotal)*100, 2),
		FitQuality:          &quality,
		ApparentRatePercent: &apparent,
		RateStdDev:          &spread,
		AmountRange:         []float64{round(lo, 2), round(hi, 2)},
	}
}

// fitLinear solves commission ≈ rate*amount + fee in closed form. The
// intercept clamps at zero since a negative minimal fee has no
// contractual meaning; R² is computed against the clamped model.
func fitLinear(xs, ys []float64) (rate, fee, r2 float64) {
	switch len(xs) {
	case 0:
		return 0, 0, 0
	case 1:
		if xs[0] > 0 {
			rate = ys[0] / xs[0]
		}
		return rate, 0, 1
	}

	n := float64(len(xs))
	var sx, sy, sxx, sxy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
		sxx += xs[i] * xs[i]
		sxy += xs[i] * ys[i]
	}
	if denom := n*sxx - sx*sx; denom != 0 {
		rate = (n*sxy - sx*sy) / denom
		fee = (sy - rate*sx) / n
	} else {
		// every amount identical, slope and intercept are inseparable
		rate = sy / sx
	}
	if fee < 0 {
		fee = 0
	}

	meanY := sy / n
	var ssRes, ssTot float64
	for i := range xs {
		d := ys[i] - (rate*xs[i] + fee)
		ssRes += d * d
		t := ys[i] - meanY
		ssTot += t * t
	}
	r2 = 1
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}
	return rate, fee, r2
}

func normalize(pts [][2]float64) [][2]float64 {
	n := float64(len(pts))
	var m0, m1 float64
	for _, p := range pts {
		m0 += p[0]
		m1 += p[1]
	}
	m0 /= n
	m1 /= n
	var s0, s1 float64
	for _, p := range pts {
		d0 := p[0] - m0
		d1 := p[1] - m1
		s0 += d0 * d0
		s1 += d1 * d1
	}
	s0 = math.Sqrt(s0 / n)
	s1 = math.Sqrt(s1 / n)
	if s0 == 0 {
		s0 = 1
	}
	if s1 == 0 {
		s1 = 1
	}
	out := make([][2]float64, len(pts))
	for i, p := range pts {
		out[i] = [2]float64{(p[0] - m0) / s0, (p[1] - m1) / s1}
	}
	return out
}

func chooseK(normalized [][2]float64, params KMeansParams) int {
	maxK := params.MaxClusters
	if lim := len(normalized) / params.MinClusterSize; maxK > lim {
		maxK = lim
	}
	totalVar := flatVariance(normalized)
	if totalVar == 0 {
		return 1
	}

	// k=1 is the baseline with score 0; larger k must strictly improve.
	bestK := 1
	bestScore := 0.0
	for k := 2; k <= maxK; k++ {
		labels, _ := lloyd(normalized, k, params.MaxIterations, params.Seed)
		sizes := make([]int, k)
		for _, l := range labels {
			sizes[l]++
		}
		minSize := sizes[0]
		for _, s := range sizes[1:] {
			if s < minSize {
				minSize = s
			}
		}
		if minSize < params.MinClusterSize {
			continue
		}

		var within float64
		for c := 0; c < k; c++ {
			var members [][2]float64
			for i, l := range labels {
				if l == c {
					members = append(members, normalized[i])
				}
			}
			if len(members) > 1 {
				within += flatVariance(members) * float64(len(members))
			}
		}
		within /= float64(len(normalized))
		if score := 1 - within/totalVar; score > bestScore {
			bestScore = score
			bestK = k
		}
	}
	return bestK
}

// lloyd runs plain Lloyd iterations from a seeded random start. Ties in
// the nearest-centroid search go to the lowest centroid index, and an
// emptied cluster keeps its previous centroid, so results are fully
// deterministic for a given seed.
func lloyd(pts [][2]float64, k, maxIter int, seed int64) ([]int, [][2]float64) {
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(pts))
	centroids := make([][2]float64, k)
	for i := 0; i < k; i++ {
		centroids[i] = pts[perm[i]]
	}

	labels := make([]int, len(pts))
	for iter := 0; iter < maxIter; iter++ {
		for i, p := range pts {
			best := 0
			bestDist := sqDist(p, centroids[0])
			for c := 1; c < k; c++ {
				if d := sqDist(p, centroids[c]); d < bestDist {
					bestDist = d
					best = c
				}
			}
			labels[i] = best
		}

		next := make([][2]float64, k)
		counts := make([]int, k)
		for i, p := range pts {
			next[labels[i]][0] += p[0]
			next[labels[i]][1] += p[1]
			counts[labels[i]]++
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				next[c] = centroids[c]
				continue
			}
			next[c][0] /= float64(counts[c])
			next[c][1] /= float64(counts[c])
		}
		done := centroidsClose(next, centroids)
		centroids = next
		if done {
			break
		}
	}
	return labels, centroids
}

func sqDist(a, b [2]float64) float64 {
	d0 := a[0] - b[0]
	d1 := a[1] - b[1]
	return d0*d0 + d1*d1
}

func centroidsClose(a, b [][2]float64) bool {
	const rtol, atol = 1e-5, 1e-8
	for i := range a {
		for j := 0; j < 2; j++ {
			if math.Abs(a[i][j]-b[i][j]) > atol+rtol*math.Abs(b[i][j]) {
				return false
			}
		}
	}
	return true
}

// flatVariance is the variance over both feature columns pooled, the
// quantity the auto-k score compares against.
func flatVariance(pts [][2]float64) float64 {
	if len(pts) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pts {
		sum += p[0] + p[1]
	}
	m := sum / float64(len(pts)*2)
	var ss float64
	for _, p := range pts {
		d0 := p[0] - m
		d1 := p[1] - m
		ss += d0*d0 + d1*d1
	}
	return ss / float64(len(pts)*2)
}

func kmeansSummary(clusters []domain.RateCluster) domain.RateSummary {
	if len(clusters) == 0 {
		return domain.RateSummary{}
	}
	dominant := clusters[0]
	share := dominant.PercentageOfTotal
	s := domain.RateSummary{
		DominantRatePercent:  &dominant.RatePercent,
		DominantSharePercent: &share,
	}
	if dominant.MinimalFee != nil {
		s.DominantMinimalFee = dominant.MinimalFee
	}
	return s
}
