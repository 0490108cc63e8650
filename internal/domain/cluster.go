package domain

type ClusterAlgorithm string

const (
	AlgorithmSorting ClusterAlgorithm = "sorting_scan"
	AlgorithmKMeans  ClusterAlgorithm = "kmeans_linear"
)

// RateCluster is one discovered commission regime. The sorting scan
// fills the rate spread fields, the k-means fit fills MinimalFee,
// FitQuality and AmountRange.
type RateCluster struct {
	ID                  int       `json:"cluster_id"`
	RatePercent         float64   `json:"rate_percent"`
	MinimalFee          *float64  `json:"minimal_fee,omitempty"`
	TransactionCount    int       `json:"transaction_count"`
	PercentageOfTotal   float64   `json:"percentage_of_total"`
	FitQuality          *float64  `json:"fit_quality,omitempty"`
	ApparentRatePercent *float64  `json:"apparent_rate_percent,omitempty"`
	RateStdDev          *float64  `json:"rate_std_dev,omitempty"`
	MinRatePercent      *float64  `json:"min_rate_percent,omitempty"`
	MaxRatePercent      *float64  `json:"max_rate_percent,omitempty"`
	AmountRange         []float64 `json:"amount_range,omitempty"`
}

// ClusterParams echoes the effective parameters of an analysis so a
// stored report stays reproducible.
type ClusterParams struct {
	MinRateDiff    float64 `json:"min_rate_diff,omitempty"`
	Eps            float64 `json:"eps,omitempty"`
	MinClusterSize int     `json:"min_cluster_size"`
	NumClusters    int     `json:"num_clusters,omitempty"`
	MaxClusters    int     `json:"max_clusters,omitempty"`
	Seed           int64   `json:"seed,omitempty"`
}

type RateSummary struct {
	MinRatePercent       *float64 `json:"min_rate_percent,omitempty"`
	MaxRatePercent       *float64 `json:"max_rate_percent,omitempty"`
	MeanRatePercent      *float64 `json:"mean_rate_percent,omitempty"`
	MedianRatePercent    *float64 `json:"median_rate_percent,omitempty"`
	DominantRatePercent  *float64 `json:"dominant_rate_percent,omitempty"`
	DominantMinimalFee   *float64 `json:"dominant_minimal_fee,omitempty"`
	DominantSharePercent *float64 `json:"dominant_share_percent,omitempty"`
}

type ClusterReport struct {
	Algorithm         ClusterAlgorithm `json:"algorithm"`
	TotalTransactions int              `json:"total_transactions"`
	ValidTransactions int              `json:"valid_transactions"`
	OutlierCount      int              `json:"outlier_count"`
	OutlierPercentage float64          `json:"outlier_percentage"`
	ClusterCount      int              `json:"clusters_found"`
	Clusters          []RateCluster    `json:"clusters"`
	Summary           RateSummary      `json:"rate_summary"`
	Params            ClusterParams    `json:"parameters"`
	Error             string           `json:"error,omitempty"`
}
