package verify

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pastrop/feeaudit/internal/detect"
	"github.com/pastrop/feeaudit/internal/domain"
	"github.com/pastrop/feeaudit/internal/fees"
)

var hundred = decimal.NewFromInt(100)

// Options tunes a verification run.
type Options struct {
	Tolerance           decimal.Decimal
	ConfidenceThreshold float64
	RequiredFields      []domain.FieldType
	CumulativeReserve   bool
	Workers             int
}

func (o *Options) applyDefaults() {
	if o.Tolerance.IsZero() {
		o.Tolerance = fees.DefaultTolerance
	}
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = fees.DefaultQuestionableBelow
	}
	if len(o.RequiredFields) == 0 {
		o.RequiredFields = []domain.FieldType{domain.FieldAmount}
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
}

// Detection is the run-level column detection outcome, including the
// percentage-based overrides and the notes they produced.
type Detection struct {
	Columns     map[domain.FieldType]domain.DetectedColumn `json:"columns"`
	Ambiguities []string                                   `json:"ambiguities,omitempty"`
	Missing     []domain.FieldType                         `json:"missing,omitempty"`
	Assumptions []string                                   `json:"assumptions,omitempty"`
	Percentages map[string]detect.ColumnPercentage         `json:"percentage_analysis,omitempty"`
	Confidence  float64                                    `json:"confidence"`
	Reasons     []string                                   `json:"reasons,omitempty"`
}

// Result is one complete verification run.
type Result struct {
	Detection     Detection                         `json:"detection"`
	Verifications []*domain.TransactionVerification `json:"verifications"`
	Summary       Summary                           `json:"summary"`
	Threshold     float64                           `json:"confidence_threshold"`
	Reserve       *fees.ReserveStatus               `json:"reserve_status,omitempty"`
}

// Service verifies transaction batches against contract terms.
type Service struct {
	log      zerolog.Logger
	contract *domain.ContractTerms
	opts     Options
}

func NewService(log zerolog.Logger, contract *domain.ContractTerms, opts Options) *Service {
	opts.applyDefaults()
	return &Service{
		log:      log.With().Str("component", "verify").Logger(),
		contract: contract,
		opts:     opts,
	}
}

// Run verifies every row against the contract. Column detection happens
// once on the first row's header set; each row then gets its expected
// fees calculated and compared. Rows never abort the batch: unreadable
// cells degrade into missing-data findings on that row's verification.
func (s *Service) Run(ctx context.Context, rows []domain.TransactionRow) (*Result, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("verify: no transactions to process")
	}
	if err := s.contract.Validate(); err != nil {
		return nil, fmt.Errorf("verify: invalid contract: %w", err)
	}

	detection := s.detect(rows)
	s.log.Info().
		Int("rows", len(rows)).
		Float64("confidence", detection.Confidence).
		Int("assumptions", len(detection.Assumptions)).
		Msg("columns detected")

	var (
		verifications []*domain.TransactionVerification
		reserve       *fees.ReserveStatus
		err           error
	)
	if s.opts.CumulativeReserve {
		verifications, reserve, err = s.verifyCumulative(ctx, rows, detection.Columns)
	} else {
		verifications, err = s.verifyParallel(ctx, rows, detection.Columns)
	}
	if err != nil {
		return nil, err
	}

	summary := Summarize(verifications, s.opts.ConfidenceThreshold)
	s.log.Info().
		Int("correct", summary.CorrectCount).
		Int("erroneous", summary.ErroneousCount).
		Int("questionable", summary.QuestionableCount).
		Int("missing_data", summary.MissingDataCount).
		Str("total_discrepancy", summary.TotalDiscrepancy.StringFixed(2)).
		Msg("verification complete")

	return &Result{
		Detection:     detection,
		Verifications: verifications,
		Summary:       summary,
		Threshold:     s.opts.ConfidenceThreshold,
		Reserve:       reserve,
	}, nil
}

// detect runs header matching plus the percentage classification pass,
// which overrides the pattern match for the commission and rolling
// reserve columns when observed ratios identify them conclusively.
func (s *Service) detect(rows []domain.TransactionRow) Detection {
	result := detect.DetectColumns(rows[0].Columns)
	d := Detection{
		Columns:     result.Columns,
		Ambiguities: result.Ambiguities,
		Missing:     result.Missing,
	}

	remPct, _ := s.contract.RemunerationRate.Mul(hundred).Float64()
	rrPct, _ := s.contract.RollingReserveRate.Mul(hundred).Float64()
	amountCol, _ := result.Column(domain.FieldAmount)
	pct := detect.ClassifyByPercentage(rows, amountCol, remPct, rrPct)

	d.Assumptions = append(d.Assumptions, pct.Assumptions...)
	d.Percentages = pct.Analysis
	if pct.RemunerationColumn != "" {
		d.Columns[domain.FieldCommission] = domain.DetectedColumn{
			Field:      domain.FieldCommission,
			Column:     pct.RemunerationColumn,
			Confidence: 1.0,
		}
	}
	if pct.RollingReserveColumn != "" {
		d.Columns[domain.FieldRollingReserve] = domain.DetectedColumn{
			Field:      domain.FieldRollingReserve,
			Column:     pct.RollingReserveColumn,
			Confidence: 1.0,
		}
	}

	for _, skip := range []struct {
		field domain.FieldType
		label string
	}{
		{domain.FieldChargebackFee, "Chargeback"},
		{domain.FieldRefundFee, "Refund"},
	} {
		col := d.Columns[skip.field]
		if !col.Found() || col.Confidence < fees.MinFlatFeeConfidence {
			d.Assumptions = append(d.Assumptions, fmt.Sprintf(
				"%s verification skipped: no valid %s column found or confidence too low (detected: '%s', confidence: %.2f)",
				skip.label, strings.ToLower(skip.label), col.Column, col.Confidence))
		}
	}

	scores := make(map[domain.FieldType]float64, len(d.Columns))
	for f, c := range d.Columns {
		scores[f] = c.Confidence
	}
	d.Confidence, d.Reasons = detect.OverallConfidence(scores, s.opts.RequiredFields)
	return d
}

func (s *Service) verifyOne(row domain.TransactionRow, detected map[domain.FieldType]domain.DetectedColumn) *domain.TransactionVerification {
	expected := fees.CalculateExpected(row, s.contract, detected)
	if amount, ok := rowAmount(row, detected); ok {
		rr, _ := fees.ExpectedReserve(amount, s.contract.RollingReserveRate, s.contract.RollingReserveCap)
		expected.SetRollingReserve(rr)
	}
	return fees.VerifyRow(row, expected, s.contract, detected, fees.VerifyOptions{
		Tolerance:         s.opts.Tolerance,
		QuestionableBelow: s.opts.ConfidenceThreshold,
	})
}

// verifyParallel fans rows out across a bounded worker pool. Workers
// write results by row position, so output order always matches input
// order regardless of scheduling.
func (s *Service) verifyParallel(ctx context.Context, rows []domain.TransactionRow, detected map[domain.FieldType]domain.DetectedColumn) ([]*domain.TransactionVerification, error) {
	out := make([]*domain.TransactionVerification, len(rows))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < s.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = s.verifyOne(rows[i], detected)
			}
		}()
	}

feed:
	for i := range rows {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("verify: canceled after partial batch: %w", err)
	}
	return out, nil
}

// verifyCumulative runs single-threaded in transaction date order so the
// reserve tracker sees a monotonic stream. Rows without a parseable date
// keep the stateless per-transaction reserve and are processed first.
func (s *Service) verifyCumulative(ctx context.Context, rows []domain.TransactionRow, detected map[domain.FieldType]domain.DetectedColumn) ([]*domain.TransactionVerification, *fees.ReserveStatus, error) {
	dateCol := detected[domain.FieldDate]

	type entry struct {
		pos   int
		date  time.Time
		dated bool
	}
	order := make([]entry, len(rows))
	for i, row := range rows {
		e := entry{pos: i}
		if dateCol.Found() && row.Has(dateCol.Column) {
			if ts, ok := row.Value(dateCol.Column).Time(); ok {
				e.date, e.dated = ts, true
			}
		}
		order[i] = e
	}
	sort.SliceStable(order, func(a, b int) bool {
		ea, eb := order[a], order[b]
		if ea.dated != eb.dated {
			return !ea.dated
		}
		if !ea.dated {
			return false
		}
		return ea.date.Before(eb.date)
	})

	tracker := fees.NewReserveTracker(s.contract.RollingReserveCap, s.contract.RollingReserveDays)
	out := make([]*domain.TransactionVerification, len(rows))

	for _, e := range order {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("verify: canceled after partial batch: %w", err)
		}
		row := rows[e.pos]
		expected := fees.CalculateExpected(row, s.contract, detected)
		if amount, ok := rowAmount(row, detected); ok {
			if e.dated {
				app, err := tracker.Apply(amount, s.contract.RollingReserveRate, e.date)
				if err != nil {
					return nil, nil, fmt.Errorf("verify: reserve apply: %w", err)
				}
				expected.SetRollingReserve(app.AppliedAmount)
			} else {
				rr, _ := fees.ExpectedReserve(amount, s.contract.RollingReserveRate, s.contract.RollingReserveCap)
				expected.SetRollingReserve(rr)
			}
		}
		out[e.pos] = fees.VerifyRow(row, expected, s.contract, detected, fees.VerifyOptions{
			Tolerance:         s.opts.Tolerance,
			QuestionableBelow: s.opts.ConfidenceThreshold,
		})
	}

	status := tracker.Status()
	return out, &status, nil
}

func rowAmount(row domain.TransactionRow, detected map[domain.FieldType]domain.DetectedColumn) (decimal.Decimal, bool) {
	col := detected[domain.FieldAmount]
	if !col.Found() || !row.Has(col.Column) {
		return decimal.Decimal{}, false
	}
	return row.Value(col.Column).Decimal()
}
