package roster

import (
	"math"
	"strconv"
	"time"
)

// ParseUptimeSeconds interprets a raw uptime-like value. Vendors report
// either a plain numeric duration in seconds or an ISO-8601 timestamp
// of when the client connected; in the latter case the duration is
// now minus the timestamp, floored at zero (clock skew between the
// controller and this host must not produce negative uptimes).
// Returns false for anything unparseable — never an error.
func ParseUptimeSeconds(raw any, now time.Time) (float64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case float64:
		return finiteSeconds(v)
	case float32:
		return finiteSeconds(float64(v))
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		if v == "" {
			return 0, false
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return finiteSeconds(f)
		}
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return math.Max(0, now.Sub(ts).Seconds()), true
		}
		// Some firmwares omit the timezone designator.
		if ts, err := time.Parse("2006-01-02T15:04:05", v); err == nil {
			return math.Max(0, now.Sub(ts).Seconds()), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func finiteSeconds(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
