package roster

import (
	"strings"
	"time"
)

// metricClass is one keyword class of the sensor classification table.
// Classes are tested in priority order against the lower-cased
// concatenation of the sensor's entity ID and display label; the first
// match wins and assigns the sensor's value to exactly one bundle
// field. A sensor matching no class is ignored — the Omada fan-out
// includes plenty of sensors (CPU, memory, PoE) the roster never shows.
type metricClass struct {
	name   string
	match  func(s string) bool
	assign func(b *MetricsBundle, v float64)
}

func containsAny(s string, kws ...string) bool {
	for _, kw := range kws {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

var metricClasses = []metricClass{
	{"downloaded", func(s string) bool {
		return strings.Contains(s, "downloaded")
	}, func(b *MetricsBundle, v float64) { b.DownloadedMB = &v }},
	{"uploaded", func(s string) bool {
		return strings.Contains(s, "uploaded")
	}, func(b *MetricsBundle, v float64) { b.UploadedMB = &v }},
	{"rx activity", func(s string) bool {
		return containsAny(s, "rx", "down activity", "receive") && !strings.Contains(s, "utilization")
	}, func(b *MetricsBundle, v float64) { b.RxActivityMBps = &v }},
	{"tx activity", func(s string) bool {
		return containsAny(s, "tx", "up activity", "transmit") && !strings.Contains(s, "utilization")
	}, func(b *MetricsBundle, v float64) { b.TxActivityMBps = &v }},
	{"snr", func(s string) bool {
		return strings.Contains(s, "snr")
	}, func(b *MetricsBundle, v float64) { b.SNRDb = &v }},
	{"rssi/signal", func(s string) bool {
		return containsAny(s, "rssi", "signal")
	}, func(b *MetricsBundle, v float64) { b.RSSIDbm = &v }},
}

// uptimeClass catches duration-flavored sensors. Separate from the
// table because its value goes through the uptime sub-parse (plain
// seconds or ISO-8601 timestamp) rather than a bare float conversion.
func isUptimeSensor(s string) bool {
	return containsAny(s, "uptime", "duration", "connected")
}

// BuildMetrics aggregates the per-device sensor fan-out for one
// controller instance into a bundle per device key. Only sensor-
// category registry rows with a known device key participate; each
// device accumulates its own independent bundle, and a device with no
// matching sensors is simply absent from the map — downstream lookups
// treat absence as "all fields unknown".
func (g *Graph) BuildMetrics(instanceID string, now time.Time) map[string]MetricsBundle {
	out := make(map[string]MetricsBundle)

	for _, e := range g.registry {
		if e.InstanceID != instanceID || e.DeviceKey == "" {
			continue
		}
		s, ok := g.State(e.ID)
		if !ok || s.Category() != "sensor" {
			continue
		}

		label, _ := attrString(s.Attributes, "friendly_name")
		key := strings.ToLower(s.ID + " " + label)

		b := out[e.DeviceKey]
		matched := false
		for _, mc := range metricClasses {
			if !mc.match(key) {
				continue
			}
			matched = true
			if v, ok := toFloat(s.Value); ok {
				mc.assign(&b, v)
				out[e.DeviceKey] = b
			}
			break
		}
		if !matched && isUptimeSensor(key) {
			if sec, ok := parseUptimeState(s, now); ok {
				b.UptimeSeconds = &sec
				out[e.DeviceKey] = b
			}
		}
	}

	return out
}

// parseUptimeState parses a sensor's state value as an uptime.
func parseUptimeState(s StateRecord, now time.Time) (float64, bool) {
	return ParseUptimeSeconds(s.Value, now)
}
