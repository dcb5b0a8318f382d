package risk

import (
	"context"
	"fmt"
	"math"

	pkgerrors "invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"

	"invoice-reconciliation-service/internal/models"
)

// PriceAnomalyDetector compares an invoice total against the statistical
// profile of the vendor's historical invoice amounts.
type PriceAnomalyDetector struct {
	history InvoiceHistory
	config  *Config
	logger  logger.Logger
}

// NewPriceAnomalyDetector creates a price anomaly detector backed by the
// given invoice history.
func NewPriceAnomalyDetector(history InvoiceHistory, config *Config, log logger.Logger) *PriceAnomalyDetector {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &PriceAnomalyDetector{
		history: history,
		config:  config,
		logger:  log.WithComponent("price_anomaly_detector"),
	}
}

// Detect computes the z-score of the invoice total against the vendor's
// historical amounts. With fewer than the minimum samples no judgement is
// made. An anomaly requires both a z-score at or beyond the threshold and an
// amount above the significance floor; the risk score then grades on how far
// the amount deviates from the historical mean.
func (d *PriceAnomalyDetector) Detect(ctx context.Context, invoice *models.Invoice) (*PriceAnomalyInfo, error) {
	candidates, err := d.history.SearchByVendor(ctx, invoice.VendorName, d.config.HistoryLookupLimit)
	if err != nil {
		return nil, pkgerrors.RiskError(pkgerrors.CodeHistoryLookup, "price_anomaly_detector", err).
			WithContext("invoice_id", invoice.ID).
			WithContext("vendor_name", invoice.VendorName)
	}

	var samples []float64
	for _, c := range candidates {
		if c.ID == invoice.ID || !c.TotalAmount.IsPositive() {
			continue
		}
		samples = append(samples, c.TotalAmount.InexactFloat64())
	}

	info := &PriceAnomalyInfo{SampleCount: len(samples)}
	if len(samples) < d.config.MinHistorySamples {
		return info, nil
	}

	mean, stdDev := meanAndSampleStdDev(samples)
	amount := invoice.TotalAmount.InexactFloat64()

	info.Mean = mean
	info.StdDev = stdDev
	if stdDev > 0 {
		info.ZScore = (amount - mean) / stdDev
	}
	if mean > 0 {
		info.DeviationPct = math.Abs(amount-mean) / mean
	}

	if math.Abs(info.ZScore) < d.config.ZScoreThreshold || amount < d.config.SignificanceFloor {
		return info, nil
	}

	info.IsAnomaly = true
	info.RiskScore = deviationRisk(info.DeviationPct)

	d.logger.WithFields(logger.Fields{
		"invoice_id": invoice.ID,
		"amount":     invoice.TotalAmount.String(),
		"mean":       fmt.Sprintf("%.2f", mean),
		"z_score":    fmt.Sprintf("%.2f", info.ZScore),
		"risk_score": info.RiskScore,
	}).Warn("Invoice amount is a statistical outlier for this vendor")

	return info, nil
}

// AmountRisk scores the raw invoice total against the configured typical
// ceiling, independent of vendor history. Amounts more than double the
// ceiling are flagged.
func (d *PriceAnomalyDetector) AmountRisk(invoice *models.Invoice) float64 {
	amount := invoice.TotalAmount.InexactFloat64()
	ceiling := d.config.TypicalAmountCeiling

	switch {
	case ceiling <= 0 || amount <= 2*ceiling:
		return 0.0
	case amount > 4*ceiling:
		return 1.0
	default:
		return 0.6
	}
}

// deviationRisk grades the risk score on the relative deviation from the
// historical mean.
func deviationRisk(deviationPct float64) float64 {
	switch {
	case deviationPct >= 0.50:
		return 1.0
	case deviationPct >= 0.30:
		return 0.70
	case deviationPct >= 0.15:
		return 0.40
	default:
		return 0.20
	}
}

// meanAndSampleStdDev computes the mean and the sample standard deviation
// (n-1 denominator) of the values.
func meanAndSampleStdDev(values []float64) (float64, float64) {
	n := float64(len(values))
	if n == 0 {
		return 0, 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	if len(values) < 2 {
		return mean, 0
	}

	sqSum := 0.0
	for _, v := range values {
		sqSum += (v - mean) * (v - mean)
	}

	return mean, math.Sqrt(sqSum / (n - 1))
}
