package metrics

import (
	"math"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const (
	turnsFamily       = "medibot_pipeline_turns_total"
	suppressionFamily = "medibot_pipeline_suppression_total"
	escalationsFamily = "medibot_pipeline_escalations_total"
	latencyFamily     = "medibot_reply_latency_seconds"
)

// Snapshot is the admin stats view of the pipeline counters.
type Snapshot struct {
	TurnsByRisk        map[string]int64 `json:"turns_by_risk"`
	TurnsByPhase       map[string]int64 `json:"turns_by_phase"`
	SuppressionReasons map[string]int64 `json:"suppression_reasons"`
	Escalations        map[string]int64 `json:"escalations"`
	ReplyLatency       LatencySnapshot  `json:"reply_latency"`
}

type LatencySnapshot struct {
	Total int64   `json:"total"`
	P90Ms float64 `json:"p90_ms"`
	P95Ms float64 `json:"p95_ms"`
}

// TakeSnapshot reads the pipeline families from gatherer. Gather errors
// produce an empty snapshot.
func TakeSnapshot(gatherer prometheus.Gatherer) Snapshot {
	snap := Snapshot{
		TurnsByRisk:        map[string]int64{},
		TurnsByPhase:       map[string]int64{},
		SuppressionReasons: map[string]int64{},
		Escalations:        map[string]int64{},
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return snap
	}

	for _, mf := range mfs {
		switch mf.GetName() {
		case turnsFamily:
			sumCounter(mf, "risk_level", snap.TurnsByRisk)
			sumCounter(mf, "phase", snap.TurnsByPhase)
		case suppressionFamily:
			sumCounter(mf, "reason", snap.SuppressionReasons)
		case escalationsFamily:
			sumCounter(mf, "reason", snap.Escalations)
		case latencyFamily:
			snap.ReplyLatency = latencySnapshot(mf)
		}
	}
	return snap
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func sumCounter(mf *dto.MetricFamily, label string, into map[string]int64) {
	for _, metric := range mf.GetMetric() {
		into[labelValue(metric, label)] += int64(metric.GetCounter().GetValue())
	}
}

// latencySnapshot aggregates successful reply calls across tiers.
func latencySnapshot(mf *dto.MetricFamily) LatencySnapshot {
	cumulativeByUpper := map[float64]uint64{}
	var total uint64
	for _, metric := range mf.GetMetric() {
		if labelValue(metric, "status") != "ok" {
			continue
		}
		h := metric.GetHistogram()
		if h == nil {
			continue
		}
		total += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			cumulativeByUpper[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}
	if total == 0 || len(cumulativeByUpper) == 0 {
		return LatencySnapshot{}
	}

	uppers := make([]float64, 0, len(cumulativeByUpper))
	for upper := range cumulativeByUpper {
		uppers = append(uppers, upper)
	}
	sort.Float64s(uppers)

	return LatencySnapshot{
		Total: int64(total),
		P90Ms: histogramQuantile(0.90, total, uppers, cumulativeByUpper) * 1000,
		P95Ms: histogramQuantile(0.95, total, uppers, cumulativeByUpper) * 1000,
	}
}

// histogramQuantile interpolates linearly inside the bucket holding the
// target rank.
func histogramQuantile(q float64, total uint64, uppers []float64, cumulativeByUpper map[float64]uint64) float64 {
	if total == 0 || q <= 0 || len(uppers) == 0 {
		return 0
	}
	target := q * float64(total)
	var prevUpper, prevCum float64
	for _, upper := range uppers {
		cum := float64(cumulativeByUpper[upper])
		if cum < target {
			prevUpper, prevCum = upper, cum
			continue
		}
		if math.IsInf(upper, 1) {
			return prevUpper
		}
		bucketCount := cum - prevCum
		if bucketCount <= 0 {
			return upper
		}
		fraction := math.Min(math.Max((target-prevCum)/bucketCount, 0), 1)
		return prevUpper + fraction*(upper-prevUpper)
	}
	return uppers[len(uppers)-1]
}
