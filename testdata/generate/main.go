package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/pastrop/feeaudit/internal/domain"
)

// Standard rate tiers carried by most rows, plus rare outlier rates
// that the clustering algorithms should push into the outlier bucket.
var (
	standardRates = []float64{3.5, 3.8, 4.8, 5.0}
	outlierRates  = []float64{1.0, 2.0, 3.0, 6.0}
)

const outlierShare = 0.05

func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := findTestdataDir()

	generateRatesCSV(rng, baseDir, 400)
	generateStatementCSV(rng, baseDir, 120)
	writeJSONFile(filepath.Join(baseDir, "contract.json"), domain.DefaultContractTerms())
	fmt.Println("Generated contract.json with the standard terms")

	fmt.Println("Test data generation complete.")
}

// generateRatesCSV writes a statement whose commissions follow the
// standard rate tiers with a sprinkling of outlier rates, for
// exercising cluster discovery.
func generateRatesCSV(rng *rand.Rand, baseDir string, rows int) {
	filePath := filepath.Join(baseDir, "rates_statement.csv")
	f, err := os.Create(filePath)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{"Transaction ID", "Amount", "Commission", "Rate Group"})

	nOutliers := int(float64(rows) * outlierShare)
	outliers := 0
	for i := 0; i < rows; i++ {
		amount := round2(1 + rng.Float64()*999)

		rate := standardRates[rng.Intn(len(standardRates))]
		group := "standard"
		// Outliers are spread across the file rather than bunched at
		// the end.
		if outliers < nOutliers && rng.Float64() < outlierShare {
			rate = outlierRates[rng.Intn(len(outlierRates))]
			group = "outlier"
			outliers++
		}

		commission := round2(amount * rate / 100)
		w.Write([]string{
			fmt.Sprintf("%06d", 100001+i),
			fmt.Sprintf("%.2f", amount),
			fmt.Sprintf("%.2f", commission),
			group,
		})
	}

	fmt.Printf("Generated %d rate rows (%d outliers) -> rates_statement.csv\n", rows, outliers)
}

// generateStatementCSV writes a Russian-headed statement priced at the
// standard contract terms, with overcharges, undercharges and missing
// commission cells mixed in for verification runs.
func generateStatementCSV(rng *rand.Rand, baseDir string, rows int) {
	filePath := filepath.Join(baseDir, "statement.csv")
	f, err := os.Create(filePath)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{"Номер", "Сумма", "Комиссия EUR", "Резерв", "Дата", "Статус"})

	terms := domain.DefaultContractTerms()
	remunerationRate, _ := terms.RemunerationRate.Float64()
	reserveRate, _ := terms.RollingReserveRate.Float64()

	startDate := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	overcharged, undercharged, missing := 0, 0, 0

	for i := 0; i < rows; i++ {
		amount := round2(5 + rng.Float64()*795)
		commission := round2(amount * remunerationRate)
		reserve := round2(amount * reserveRate)
		date := startDate.AddDate(0, 0, rng.Intn(31)).Format("2006-01-02")

		commissionCell := fmt.Sprintf("%.2f", commission)
		switch roll := rng.Float64(); {
		case roll < 0.06:
			commissionCell = fmt.Sprintf("%.2f", round2(commission*1.3))
			overcharged++
		case roll < 0.10:
			commissionCell = fmt.Sprintf("%.2f", round2(commission*0.7))
			undercharged++
		case roll < 0.15:
			commissionCell = ""
			missing++
		}

		reserveCell := fmt.Sprintf("%.2f", reserve)
		if rng.Float64() < 0.03 {
			reserveCell = fmt.Sprintf("%.2f", round2(reserve*0.5))
		}

		w.Write([]string{
			fmt.Sprintf("%06d", 200001+i),
			fmt.Sprintf("%.2f", amount),
			commissionCell,
			reserveCell,
			date,
			"completed",
		})
	}

	fmt.Printf("Generated %d statement rows (%d over, %d under, %d missing) -> statement.csv\n",
		rows, overcharged, undercharged, missing)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	candidates := []string{"testdata", "./testdata"}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "testdata"
}
