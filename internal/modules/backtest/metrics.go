package backtest

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summary metric keys filled in when the engine omits them
const (
	MetricTotalReturn = "total_return"
	MetricVolatility  = "volatility"
	MetricSharpe      = "sharpe_ratio"
	MetricMaxDrawdown = "max_drawdown"
)

const periodsPerYear = 252

// series returns the values of a date-keyed map in date order
func series(m map[string]float64) []float64 {
	dates := make([]string, 0, len(m))
	for d := range m {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	out := make([]float64, len(dates))
	for i, d := range dates {
		out[i] = m[d]
	}
	return out
}

// simpleReturns converts a value series to period returns
func simpleReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

// maxDrawdown is the largest peak-to-trough loss as a positive fraction
func maxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	peak, worst := values[0], 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// FillSummaryMetrics computes total return, annualized volatility, sharpe
// ratio (zero risk-free rate) and max drawdown from the series for every
// metric the engine did not report. Metrics the engine sent are kept.
func (r *Result) FillSummaryMetrics() {
	if r.Metrics == nil {
		r.Metrics = make(map[string]float64)
	}
	values := series(r.PortfolioValues)
	returns := series(r.Returns)
	if len(returns) == 0 {
		returns = simpleReturns(values)
	}

	set := func(key string, v float64) {
		if _, ok := r.Metrics[key]; ok || math.IsNaN(v) || math.IsInf(v, 0) {
			return
		}
		r.Metrics[key] = v
	}

	if len(values) >= 2 && values[0] != 0 {
		set(MetricTotalReturn, values[len(values)-1]/values[0]-1)
		set(MetricMaxDrawdown, maxDrawdown(values))
	}
	if len(returns) >= 2 {
		mean, std := stat.MeanStdDev(returns, nil)
		annualize := math.Sqrt(periodsPerYear)
		set(MetricVolatility, std*annualize)
		if std > 0 {
			set(MetricSharpe, mean/std*annualize)
		}
	}
}
