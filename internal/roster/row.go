package roster

import (
	"fmt"
	"strings"
	"time"
)

// signalLevels classify RSSI into discrete quality bands for display
// coloring. Evaluated in order, first threshold passed wins.
var signalLevels = []struct {
	minDbm float64
	label  string
}{
	{-50, "excellent"},
	{-60, "good"},
	{-70, "fair"},
}

func classifySignal(dbm float64) string {
	for _, l := range signalLevels {
		if dbm > l.minDbm {
			return l.label
		}
	}
	return "weak"
}

// isOnline interprets the tracker state value plus the online
// attribute. Trackers report "home"/"not_home", switches "on"/"off".
func isOnline(s StateRecord) bool {
	switch strings.ToLower(strings.TrimSpace(s.Value)) {
	case "home", "on", "online", "connected":
		return true
	}
	if b, ok := attrBool(s.Attributes, aliasOnline...); ok {
		return b
	}
	return false
}

// megabyte converts the MB-denominated metric fields to bytes using
// the same binary base the byte formatter renders with.
const megabyte = 1024 * 1024

// AssembleRow builds one canonical row from a state record plus its
// optional metrics bundle and device entry. Metrics take priority over
// tracker-embedded attributes when both exist — the controller's
// sensor fan-out refreshes per-sensor while tracker attribute bags can
// be stale snapshots. Still-unknown identity fields are backfilled
// from the device entry and finally from the known-clients index.
func AssembleRow(s StateRecord, opts Options, bundle *MetricsBundle, device *DeviceEntry, clients clientIndex, hint RateUnit) CanonicalRow {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	row := CanonicalRow{EntityID: s.ID}
	attrs := s.Attributes

	row.Name, _ = attrString(attrs, aliasName...)
	row.MAC, _ = attrString(attrs, aliasMAC...)
	row.IP, _ = attrString(attrs, aliasIP...)
	row.Hostname, _ = attrString(attrs, aliasHostname...)

	row.Online = isOnline(s)
	if row.Online {
		row.StatusColor = "online"
	} else {
		row.StatusColor = "offline"
	}

	// Band: explicit field beats radio mode beats SSID, because some
	// vendors encode the band in the SSID only when the dedicated
	// field is absent.
	bandField, _ := attrString(attrs, "band", "connection_type")
	radioField, _ := attrString(attrs, "radio", "wifi_mode")
	ssid, _ := attrString(attrs, aliasSSID...)
	row.BandType = ClassifyBand([]string{bandField, radioField, ssid})
	row.Band = bandLabel(row.BandType, bandField)

	row.ConnectionType, row.Connection = ClassifyConnection(connEvidence(attrs, ssid))

	// Speeds: controller activity metrics (MB/s) win over tracker
	// attributes; the raw twin fields are always normalized Mbps.
	if bundle != nil && bundle.RxActivityMBps != nil {
		row.DownSpeedMbps = ptr(*bundle.RxActivityMBps * 8)
	} else if raw, ok := attrFloat(attrs, aliasDownSpeed...); ok {
		row.DownSpeedMbps = ptr(NormalizeThroughputMbps(raw))
	}
	if bundle != nil && bundle.TxActivityMBps != nil {
		row.UpSpeedMbps = ptr(*bundle.TxActivityMBps * 8)
	} else if raw, ok := attrFloat(attrs, aliasUpSpeed...); ok {
		row.UpSpeedMbps = ptr(NormalizeThroughputMbps(raw))
	}
	row.DownSpeed = speedOrUnknown(row.DownSpeedMbps, opts.SpeedUnit)
	row.UpSpeed = speedOrUnknown(row.UpSpeedMbps, opts.SpeedUnit)

	// Link rates through the batch unit hint.
	if raw, ok := attrFloat(attrs, aliasTxRate...); ok {
		row.TxRateMbps = ptr(NormalizeLinkMbps(raw, row.BandType, hint))
	}
	if raw, ok := attrFloat(attrs, aliasRxRate...); ok {
		row.RxRateMbps = ptr(NormalizeLinkMbps(raw, row.BandType, hint))
	}
	row.TxRate = rateOrUnknown(row.TxRateMbps)
	row.RxRate = rateOrUnknown(row.RxRateMbps)

	// Signal quality.
	if bundle != nil && bundle.RSSIDbm != nil {
		row.SignalDbm = ptr(*bundle.RSSIDbm)
	} else if raw, ok := attrFloat(attrs, aliasSignal...); ok {
		row.SignalDbm = ptr(raw)
	}
	if row.SignalDbm != nil {
		row.Signal = fmt.Sprintf("%.0f dBm", *row.SignalDbm)
		row.SignalLevel = classifySignal(*row.SignalDbm)
	} else {
		row.Signal = Unknown
	}

	if bundle != nil && bundle.SNRDb != nil {
		row.SNRDb = ptr(*bundle.SNRDb)
	} else if raw, ok := attrFloat(attrs, aliasSNR...); ok {
		row.SNRDb = ptr(raw)
	}
	if row.SNRDb != nil {
		row.SNR = fmt.Sprintf("%.0f dB", *row.SNRDb)
	} else {
		row.SNR = Unknown
	}

	// Uptime: metrics first, then the tracker attribute sub-parse.
	row.OnlineTime = Unknown
	if bundle != nil && bundle.UptimeSeconds != nil {
		row.OnlineTime = FormatDuration(*bundle.UptimeSeconds)
	} else if raw, ok := firstAttr(attrs, aliasUptime); ok {
		if sec, ok := ParseUptimeSeconds(raw, now); ok {
			row.OnlineTime = FormatDuration(sec)
		}
	}

	row.PacketsSent = countOrUnknown(attrs, aliasPktsSent)
	row.PacketsReceived = countOrUnknown(attrs, aliasPktsRecv)

	assignTraffic(&row, attrs, bundle)

	if b, ok := attrBool(attrs, aliasPowerSave...); ok {
		if b {
			row.PowerSave = "on"
		} else {
			row.PowerSave = "off"
		}
	} else {
		row.PowerSave = Unknown
	}

	row.DeviceType, _ = attrString(attrs, aliasDevType...)
	row.DeviceModel, _ = attrString(attrs, aliasModel...)
	row.Firmware, _ = attrString(attrs, aliasFirmware...)
	row.DeviceStatus, _ = attrString(attrs, aliasStatus...)

	// Device-entry backfill for whatever the tracker didn't report.
	if device != nil {
		row.DeviceKey = device.Key
		if row.Name == "" {
			row.Name = device.Name()
		}
		if row.MAC == "" {
			row.MAC = device.MAC()
		}
		if row.DeviceModel == "" {
			row.DeviceModel = device.Model
		}
		if row.Firmware == "" {
			row.Firmware = device.FirmwareVersion
		}
	}

	row.MACNormalized = normalizeMAC(row.MAC)

	// Known-clients cross-reference: MAC match beats name match.
	if kc, ok := clients.lookup(row.MACNormalized, row.Name); ok {
		if row.IP == "" {
			row.IP = kc.IP
		}
		if row.Name == "" {
			row.Name = kc.Name
		}
		if row.Hostname == "" {
			row.Hostname = kc.Hostname
		}
	}

	row.NameDisplay = orUnknown(row.Name)
	row.IP = orUnknown(row.IP)
	row.Hostname = orUnknown(row.Hostname)
	row.MAC = orUnknown(row.MAC)
	row.DeviceType = orUnknown(row.DeviceType)
	row.DeviceModel = orUnknown(row.DeviceModel)
	row.Firmware = orUnknown(row.Firmware)
	row.DeviceStatus = orUnknown(row.DeviceStatus)

	return row
}

// assignTraffic computes the traffic-usage total with its fallback
// order: summed downloaded+uploaded metrics (MB→bytes), else summed
// raw traffic attributes, else the single combined usage attribute.
// The down/up pair always comes from one source: metric and attribute
// counters are sampled at different times, so mixing one direction from
// each would produce a total that never existed.
func assignTraffic(row *CanonicalRow, attrs map[string]any, bundle *MetricsBundle) {
	row.Downloaded = Unknown
	row.Uploaded = Unknown
	row.TrafficUsage = Unknown

	var downBytes, upBytes *float64
	if bundle != nil && (bundle.DownloadedMB != nil || bundle.UploadedMB != nil) {
		if bundle.DownloadedMB != nil {
			downBytes = ptr(*bundle.DownloadedMB * megabyte)
		}
		if bundle.UploadedMB != nil {
			upBytes = ptr(*bundle.UploadedMB * megabyte)
		}
	} else {
		if raw, ok := attrFloat(attrs, aliasTrafficDown...); ok {
			downBytes = ptr(raw)
		}
		if raw, ok := attrFloat(attrs, aliasTrafficUp...); ok {
			upBytes = ptr(raw)
		}
	}

	if downBytes != nil {
		row.Downloaded = FormatBytes(*downBytes)
	}
	if upBytes != nil {
		row.Uploaded = FormatBytes(*upBytes)
	}

	switch {
	case downBytes != nil || upBytes != nil:
		total := 0.0
		if downBytes != nil {
			total += *downBytes
		}
		if upBytes != nil {
			total += *upBytes
		}
		row.TrafficUsageBytes = ptr(total)
	default:
		if raw, ok := attrFloat(attrs, aliasTraffic...); ok {
			row.TrafficUsageBytes = ptr(raw)
		}
	}
	if row.TrafficUsageBytes != nil {
		row.TrafficUsage = FormatBytes(*row.TrafficUsageBytes)
	}
}

// connEvidence extracts the connection classification inputs from an
// attribute bag.
func connEvidence(attrs map[string]any, ssid string) ConnEvidence {
	e := ConnEvidence{SSID: ssid}
	if b, ok := attrBool(attrs, aliasGuest...); ok {
		e.Guest = ptr(b)
	}
	if b, ok := attrBool(attrs, aliasWireless...); ok {
		e.Wireless = ptr(b)
	}
	e.Interface, _ = attrString(attrs, aliasInterface...)
	e.SwitchPort, _ = attrString(attrs, aliasSwitchPort...)
	e.SwitchName, _ = attrString(attrs, aliasSwitchName...)
	e.SwitchMAC, _ = attrString(attrs, aliasSwitchMAC...)
	e.APName, _ = attrString(attrs, aliasAPName...)
	e.APMAC, _ = attrString(attrs, aliasAPMAC...)
	e.Text, _ = attrString(attrs, aliasWireType...)
	e.DeviceType, _ = attrString(attrs, aliasDevType...)
	e.IP, _ = attrString(attrs, aliasIP...)
	e.MAC, _ = attrString(attrs, aliasMAC...)
	return e
}

// bandLabel prefers the vendor's own label when one was reported.
func bandLabel(b Band, raw string) string {
	if b == BandUnknown {
		if raw != "" {
			return raw
		}
		return Unknown
	}
	switch b {
	case Band2G:
		return "2.4 GHz"
	case Band5G:
		return "5 GHz"
	case Band6G:
		return "6 GHz"
	}
	return Unknown
}

func speedOrUnknown(mbps *float64, unit SpeedUnit) string {
	if mbps == nil {
		return Unknown
	}
	return FormatSpeedMbps(*mbps, unit)
}

func rateOrUnknown(mbps *float64) string {
	if mbps == nil {
		return Unknown
	}
	return FormatRateMbps(*mbps)
}

func countOrUnknown(attrs map[string]any, aliases []string) string {
	if v, ok := attrFloat(attrs, aliases...); ok {
		return fmt.Sprintf("%.0f", v)
	}
	return Unknown
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

func ptr[T any](v T) *T { return &v }
