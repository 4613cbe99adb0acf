package roster

import "math"

// RateUnit is a unit hint for raw link-rate values, which arrive from
// the vendors in mixed units with no unit tag. The only discriminant
// available is "what magnitude is physically plausible for this band".
type RateUnit string

const (
	// RateUnitAuto computes the bucket per-value.
	RateUnitAuto RateUnit = ""
	// RateUnitKbps treats raw values as kilobits per second.
	RateUnitKbps RateUnit = "kbps"
	// RateUnitMbps treats raw values as megabits per second.
	RateUnitMbps RateUnit = "mbps"
)

// Magnitude thresholds for the unit buckets. A 2.4 GHz link physically
// caps well under 1,000 Mbps, so a reading at or above that magnitude
// on that band must be Kbps. 6 GHz links legitimately negotiate
// >5 Gbps PHY rates, so the lower Kbps bucket is not applied there.
const (
	rateBpsThreshold      = 10_000_000
	rateKbpsThreshold     = 10_000
	rateKbpsBandThreshold = 5_000
	batchKbpsThreshold    = 10_000
	batch2GKbpsThreshold  = 1_000
)

// RateSample is one observation used for batch unit detection.
type RateSample struct {
	Raw  float64
	Band Band
}

// BatchRateHint samples a whole batch of link-rate readings and
// decides a single unit hint for all of them. Deciding per-batch
// rather than per-value keeps sibling rows consistent when some
// devices idle near zero while others saturate.
func BatchRateHint(samples []RateSample) RateUnit {
	for _, s := range samples {
		if math.Abs(s.Raw) >= batchKbpsThreshold {
			return RateUnitKbps
		}
	}
	for _, s := range samples {
		if s.Band == Band2G && math.Abs(s.Raw) >= batch2GKbpsThreshold {
			return RateUnitKbps
		}
	}
	return RateUnitMbps
}

// NormalizeLinkMbps converts a raw tx/rx link-rate reading to Mbps.
// The bps bucket applies regardless of hint — no radio link negotiates
// ten million Mbps, so a value that large can only be bps. Below that,
// the hint wins when supplied; otherwise the bucket is computed from
// the value's magnitude and the record's band.
func NormalizeLinkMbps(raw float64, band Band, hint RateUnit) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}
	abs := math.Abs(raw)
	if abs >= rateBpsThreshold {
		return raw / 1e6
	}
	switch hint {
	case RateUnitKbps:
		return raw / 1000
	case RateUnitMbps:
		return raw
	}
	if abs >= rateKbpsThreshold {
		return raw / 1000
	}
	if abs >= rateKbpsBandThreshold && band != Band6G {
		return raw / 1000
	}
	return raw
}

// Throughput thresholds sit higher than the link-rate ones because raw
// activity readings arrive in different native units per integration:
// the router reports bits per second, Deco reports bytes per second,
// and Omada reports values already near Mbps scale.
const (
	throughputBpsThreshold   = 10_000_000
	throughputBytesThreshold = 100_000
	throughputKbpsThreshold  = 10_000
)

// NormalizeThroughputMbps converts a raw up/down activity reading to
// Mbps using magnitude buckets: ≥1e7 is bps, ≥1e5 is bytes/s, ≥1e4 is
// Kbps, anything smaller is accepted as Mbps.
func NormalizeThroughputMbps(raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}
	abs := math.Abs(raw)
	switch {
	case abs >= throughputBpsThreshold:
		return raw / 1e6
	case abs >= throughputBytesThreshold:
		return raw * 8 / 1e6
	case abs >= throughputKbpsThreshold:
		return raw / 1000
	default:
		return raw
	}
}
