package cluster

import (
	"fmt"
	"sort"

	"github.com/pastrop/feeaudit/internal/domain"
)

const (
	DefaultMinRateDiff    = 0.001
	DefaultMinClusterSize = 10
)

// SortingParams tunes the sorting-scan analyzer. Zero values fall back
// to the defaults.
type SortingParams struct {
	MinRateDiff    float64
	MinClusterSize int
}

func (p *SortingParams) applyDefaults() {
	if p.MinRateDiff <= 0 {
		p.MinRateDiff = DefaultMinRateDiff
	}
	if p.MinClusterSize <= 0 {
		p.MinClusterSize = DefaultMinClusterSize
	}
}

// Assignment maps one input transaction back to its discovered cluster.
// ClusterID is -1 for outliers and for rows that never produced a rate.
type Assignment struct {
	Index              int      `json:"index"`
	Amount             float64  `json:"amount"`
	Commission         float64  `json:"commission"`
	RatePercent        *float64 `json:"rate_percent,omitempty"`
	ClusterID          int      `json:"cluster_id"`
	ClusterRatePercent *float64 `json:"cluster_rate_percent,omitempty"`
}

// AnalyzeSorting discovers commission-rate clusters by sorting the
// per-transaction rates and scanning for dense runs. Two rates belong to
// the same run when they sit within half of MinRateDiff of the run
// start. Runs shorter than MinClusterSize are left as outliers.
//
// Results are deterministic for a given input regardless of row order.
func AnalyzeSorting(amounts, commissions []float64, params SortingParams) (*domain.ClusterReport, error) {
	res, err := runSorting(amounts, commissions, params)
	if err != nil {
		return nil, err
	}
	return res.report, nil
}

// AssignSorting returns the per-transaction cluster membership for the
// same analysis AnalyzeSorting performs.
func AssignSorting(amounts, commissions []float64, params SortingParams) ([]Assignment, error) {
	res, err := runSorting(amounts, commissions, params)
	if err != nil {
		return nil, err
	}

	rateByCluster := make(map[int]float64, len(res.report.Clusters))
	for _, c := range res.report.Clusters {
		rateByCluster[c.ID] = c.RatePercent
	}

	out := make([]Assignment, len(amounts))
	for i := range amounts {
		a := Assignment{
			Index:      i,
			Amount:     amounts[i],
			Commission: commissions[i],
			ClusterID:  -1,
		}
		if label, ok := res.labels[i]; ok {
			rate := round(commissions[i]/amounts[i]*100, 4)
			a.RatePercent = &rate
			a.ClusterID = label
			if label >= 0 {
				cr := rateByCluster[label]
				a.ClusterRatePercent = &cr
			}
		}
		out[i] = a
	}
	return out, nil
}

type sortingResult struct {
	report *domain.ClusterReport
	// labels holds an entry per valid input index; -1 marks an outlier.
	labels map[int]int
}

func runSorting(amounts, commissions []float64, params SortingParams) (*sortingResult, error) {
	if len(amounts) != len(commissions) {
		return nil, fmt.Errorf("amounts and commissions length mismatch: %d vs %d", len(amounts), len(commissions))
	}
	params.applyDefaults()

	report := &domain.ClusterReport{
		Algorithm:         domain.AlgorithmSorting,
		TotalTransactions: len(amounts),
		Clusters:          []domain.RateCluster{},
		Params: domain.ClusterParams{
			MinRateDiff:    params.MinRateDiff,
			Eps:            params.MinRateDiff / 2,
			MinClusterSize: params.MinClusterSize,
		},
	}
	res := &sortingResult{report: report, labels: map[int]int{}}

	pts, origIdx := validPoints(amounts, commissions)
	report.ValidTransactions = len(pts)
	if len(pts) == 0 {
		report.Error = "no valid transactions: every row has a non-positive or non-finite amount"
		return res, nil
	}

	type ratePoint struct {
		rate float64
		idx  int
	}
	points := make([]ratePoint, len(pts))
	for i, p := range pts {
		points[i] = ratePoint{rate: p[1] / p[0], idx: origIdx[i]}
		res.labels[origIdx[i]] = -1
	}
	sort.SliceStable(points, func(a, b int) bool { return points[a].rate < points[b].rate })

	eps := params.MinRateDiff / 2
	n := len(points)
	clustered := 0
	id := 0
	i := 0
	for i < n {
		j := i
		for j < n && points[j].rate-points[i].rate <= eps {
			j++
		}
		if j-i < params.MinClusterSize {
			i++
			continue
		}

		run := make([]float64, j-i)
		for k := i; k < j; k++ {
			run[k-i] = points[k].rate
			res.labels[points[k].idx] = id
		}
		std := round(stdDev(run)*100, 6)
		lo := round(run[0]*100, 4)
		hi := round(run[len(run)-1]*100, 4)
		report.Clusters = append(report.Clusters, domain.RateCluster{
			ID:                id,
			RatePercent:       round(median(run)*100, 4),
			TransactionCount:  len(run),
			PercentageOfTotal: round(float64(len(run))/float64(n)*100, 2),
			RateStdDev:        &std,
			MinRatePercent:    &lo,
			MaxRatePercent:    &hi,
		})
		clustered += len(run)
		id++
		i = j
	}

	report.OutlierCount = n - clustered
	report.OutlierPercentage = round(float64(report.OutlierCount)/float64(n)*100, 2)
	sort.SliceStable(report.Clusters, func(a, b int) bool {
		return report.Clusters[a].TransactionCount > report.Clusters[b].TransactionCount
	})
	report.ClusterCount = len(report.Clusters)

	sortedRates := make([]float64, n)
	for i, p := range points {
		sortedRates[i] = p.rate
	}
	report.Summary = sortingSummary(sortedRates)
	return res, nil
}

// sortingSummary describes the full valid rate distribution, outliers
// included. Input must be sorted ascending and non-empty.
func sortingSummary(sortedRates []float64) domain.RateSummary {
	lo := round(sortedRates[0]*100, 4)
	hi := round(sortedRates[len(sortedRates)-1]*100, 4)
	mn := round(mean(sortedRates)*100, 4)
	md := round(median(sortedRates)*100, 4)
	return domain.RateSummary{
		MinRatePercent:    &lo,
		MaxRatePercent:    &hi,
		MeanRatePercent:   &mn,
		MedianRatePercent: &md,
	}
}
