package roster

import (
	"fmt"
	"math"
)

// formatMagnitude renders a value with 0, 1 or 2 decimal places
// depending on magnitude: big numbers don't need fractional precision,
// small ones do (≥100 → 0dp, ≥10 → 1dp, else 2dp).
func formatMagnitude(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 100:
		return fmt.Sprintf("%.0f", v)
	case abs >= 10:
		return fmt.Sprintf("%.1f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// FormatSpeed renders a raw throughput reading in the requested unit.
// The raw value is first normalized to Mbps via the magnitude buckets,
// so the unit choice is purely a display concern: the same raw input
// yields "2.05 MB/s" or "16.4 Mbps" depending only on unit.
func FormatSpeed(raw float64, unit SpeedUnit) string {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return Unknown
	}
	mbps := NormalizeThroughputMbps(raw)
	return FormatSpeedMbps(mbps, unit)
}

// FormatSpeedMbps renders an already-normalized Mbps value in the
// requested display unit.
func FormatSpeedMbps(mbps float64, unit SpeedUnit) string {
	if math.IsNaN(mbps) || math.IsInf(mbps, 0) {
		return Unknown
	}
	if unit == SpeedUnitMBps {
		return formatMagnitude(mbps/8) + " MB/s"
	}
	return formatMagnitude(mbps) + " Mbps"
}

// FormatRateMbps renders a normalized link rate. Link rates are PHY
// negotiation values and are always shown in Mbps regardless of the
// configured speed unit.
func FormatRateMbps(mbps float64) string {
	if math.IsNaN(mbps) || math.IsInf(mbps, 0) {
		return Unknown
	}
	return formatMagnitude(mbps) + " Mbps"
}

// byteUnits are binary (1024) prefixes.
var byteUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// FormatBytes renders a byte count with binary prefixes and
// magnitude-dependent precision.
func FormatBytes(b float64) string {
	if math.IsNaN(b) || math.IsInf(b, 0) || b < 0 {
		return Unknown
	}
	v := b
	unit := 0
	for v >= 1024 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	return formatMagnitude(v) + " " + byteUnits[unit]
}

// FormatDuration renders a second count as "[Nmo ][Nd ]HH:MM:SS".
// Months and days appear only when non-zero; hours, minutes and
// seconds are always padded to two digits.
func FormatDuration(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return Unknown
	}
	total := int64(seconds)
	const (
		day   = 86400
		month = 30 * day
	)
	months := total / month
	total %= month
	days := total / day
	total %= day
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60

	out := ""
	if months > 0 {
		out += fmt.Sprintf("%dmo ", months)
	}
	if days > 0 {
		out += fmt.Sprintf("%dd ", days)
	}
	return out + fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
