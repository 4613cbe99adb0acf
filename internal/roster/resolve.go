package roster

import "time"

// statePriority orders candidate state records when synthesizing a row
// for a device with no tracker entity. Lower is better.
var statePriority = map[string]int{
	"device_tracker": 0,
	"switch":         1,
	"button":         2,
	"sensor":         3,
}

// Resolve runs the full pipeline over one snapshot: build the identity
// graph, select the instance's trackers, aggregate controller metrics,
// and assemble one canonical row per device. The output is
// deterministic for identical inputs — collection iteration order
// never decides a tie.
func Resolve(snap Snapshot, opts Options) []CanonicalRow {
	g := BuildGraph(snap)
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
		opts.Now = now
	}

	trackers := g.SelectTrackers(opts.InstanceID, opts.Integration)

	// One unit hint for the whole batch keeps sibling rows consistent
	// when some devices idle near zero while others saturate.
	var samples []RateSample
	for _, s := range trackers {
		bandField, _ := attrString(s.Attributes, "band", "connection_type")
		radioField, _ := attrString(s.Attributes, "radio", "wifi_mode")
		ssid, _ := attrString(s.Attributes, aliasSSID...)
		band := ClassifyBand([]string{bandField, radioField, ssid})
		if raw, ok := attrFloat(s.Attributes, aliasTxRate...); ok {
			samples = append(samples, RateSample{Raw: raw, Band: band})
		}
		if raw, ok := attrFloat(s.Attributes, aliasRxRate...); ok {
			samples = append(samples, RateSample{Raw: raw, Band: band})
		}
	}
	hint := BatchRateHint(samples)

	// Sensor fan-out aggregation only exists on the controller-style
	// integration; the other variants embed telemetry in the tracker.
	var metrics map[string]MetricsBundle
	if opts.Integration == IntegrationOmada && opts.InstanceID != "" {
		metrics = g.BuildMetrics(opts.InstanceID, now)
	}

	clients := buildClientIndex(g)

	rows := make([]CanonicalRow, 0, len(trackers))
	seen := make(map[string]bool, len(trackers))
	coveredDevices := make(map[string]bool)

	for _, s := range trackers {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true

		var bundle *MetricsBundle
		var device *DeviceEntry
		if e, ok := g.Entry(s.ID); ok && e.DeviceKey != "" {
			coveredDevices[e.DeviceKey] = true
			if b, ok := metrics[e.DeviceKey]; ok {
				bundle = &b
			}
			if d, ok := g.Device(e.DeviceKey); ok {
				device = &d
			}
		}
		rows = append(rows, AssembleRow(s, opts, bundle, device, clients, hint))
	}

	rows = append(rows, synthesizeInfraRows(g, opts, metrics, clients, hint, coveredDevices)...)
	return rows
}

// synthesizeInfraRows creates rows for devices that expose only
// infrastructure state — a gateway, switch or AP has no tracker entity
// at all, so its row is built from its highest-priority available
// state record with traffic/signal/uptime pulled from metrics only.
func synthesizeInfraRows(g *Graph, opts Options, metrics map[string]MetricsBundle, clients clientIndex, hint RateUnit, covered map[string]bool) []CanonicalRow {
	if opts.InstanceID == "" {
		return nil
	}

	var rows []CanonicalRow
	seenDevice := make(map[string]bool)

	// Registry input order decides which device is considered first.
	for _, e := range g.registry {
		if e.InstanceID != opts.InstanceID || e.DeviceKey == "" {
			continue
		}
		if covered[e.DeviceKey] || seenDevice[e.DeviceKey] {
			continue
		}
		seenDevice[e.DeviceKey] = true

		best, ok := bestDeviceState(g, e.DeviceKey)
		if !ok {
			continue
		}
		// A tracker here means the device was already covered (or the
		// tracker failed selection); either way it is not infra-only.
		if best.Category() == trackerCategory {
			continue
		}

		var bundle *MetricsBundle
		if b, ok := metrics[e.DeviceKey]; ok {
			bundle = &b
		}
		var device *DeviceEntry
		if d, ok := g.Device(e.DeviceKey); ok {
			device = &d
		}
		rows = append(rows, AssembleRow(best, opts, bundle, device, clients, hint))
	}

	return rows
}

// bestDeviceState picks the highest-priority state record among a
// device's registry entries (tracker > switch > button > sensor),
// breaking priority ties by registry input order.
func bestDeviceState(g *Graph, deviceKey string) (StateRecord, bool) {
	best := StateRecord{}
	bestRank := len(statePriority) + 1
	found := false
	for _, e := range g.DeviceEntries(deviceKey) {
		s, ok := g.State(e.ID)
		if !ok {
			continue
		}
		rank, known := statePriority[s.Category()]
		if !known {
			continue
		}
		if rank < bestRank {
			best = s
			bestRank = rank
			found = true
		}
	}
	return best, found
}
