// Package roster resolves Home Assistant session snapshots from the
// TP-Link router, TP-Link Deco, and Omada controller integrations into
// one canonical, display-ready row per network client or device.
//
// The package is purely functional: every operation is a synchronous
// traversal of caller-owned, immutable snapshot collections. Nothing
// here talks to a network device, retains state between calls, or
// returns an error — absent or unparseable input degrades to the
// Unknown sentinel instead.
package roster

import "time"

// Unknown is the sentinel rendered for any display field whose value
// could not be determined from the snapshot.
const Unknown = "—"

// SpeedUnit selects the human-readable formatting of speed fields.
// The normalized numeric twin fields are always stored in Mbps
// regardless of this setting.
type SpeedUnit string

const (
	// SpeedUnitMBps formats speeds as megabytes per second.
	SpeedUnitMBps SpeedUnit = "MBps"
	// SpeedUnitMbps formats speeds as megabits per second.
	SpeedUnitMbps SpeedUnit = "Mbps"
)

// Integration identifies which vendor integration family a snapshot
// slice belongs to. The three variants link their entities differently,
// which is why the tracker selector needs a fallback ladder at all.
type Integration string

const (
	IntegrationRouter Integration = "tplink_router"
	IntegrationDeco   Integration = "tplink_deco"
	IntegrationOmada  Integration = "omada"
)

// StateRecord is one observed entity at a point in time. The ID prefix
// before the first "." is the coarse category ("device_tracker",
// "sensor", "switch", "button"). The attribute bag is free-form vendor
// data and is treated as read-only.
type StateRecord struct {
	ID         string
	Value      string
	Attributes map[string]any
}

// Category returns the portion of the state ID before the first ".",
// or "" when the ID has no category prefix.
func (s StateRecord) Category() string {
	for i := 0; i < len(s.ID); i++ {
		if s.ID[i] == '.' {
			return s.ID[:i]
		}
	}
	return ""
}

// RegistryEntry links a state ID to its owning integration instance
// and, optionally, to a device grouping key. Entries may be missing or
// partially populated; the resolver treats the registry as an
// eventually-consistent snapshot, never as authoritative truth.
type RegistryEntry struct {
	ID            string
	IntegrationID string
	InstanceID    string // "" when the owning instance is unknown
	DeviceKey     string // "" when the entry is not grouped under a device
}

// Identifier is one hardware identifier attached to a device entry,
// e.g. {"mac", "aa:bb:cc:dd:ee:ff"}.
type Identifier struct {
	Kind  string
	Value string
}

// DeviceEntry describes one physical device grouping from the device
// registry. All fields except Key are optional.
type DeviceEntry struct {
	Key             string
	DisplayName     string
	UserDisplayName string
	Model           string
	Manufacturer    string
	FirmwareVersion string
	Identifiers     []Identifier
}

// Name returns the user-assigned name when present, falling back to
// the integration-provided display name.
func (d DeviceEntry) Name() string {
	if d.UserDisplayName != "" {
		return d.UserDisplayName
	}
	return d.DisplayName
}

// MAC returns the first MAC-kind hardware identifier, or "".
func (d DeviceEntry) MAC() string {
	for _, id := range d.Identifiers {
		if id.Kind == "mac" {
			return id.Value
		}
	}
	return ""
}

// MetricsBundle aggregates the per-device sensor fan-out of the Omada
// integration into one value bundle. Nil fields mean "unknown" — a
// bundle is never zero-filled.
type MetricsBundle struct {
	DownloadedMB   *float64
	UploadedMB     *float64
	RxActivityMBps *float64
	TxActivityMBps *float64
	RSSIDbm        *float64
	SNRDb          *float64
	UptimeSeconds  *float64
}

// Snapshot is the full input to one resolution pass: the live state
// table, the entity registry (with its load-failure flag), and the
// device registry. The resolver reads it and never mutates it.
type Snapshot struct {
	States   map[string]StateRecord
	Registry []RegistryEntry
	Devices  []DeviceEntry

	// RegistryLoadFailed distinguishes "registry genuinely empty" from
	// "registry fetch failed". It changes selection strategy, not just
	// field values: without a registry the selector degrades to the
	// global attribute-marker scan.
	RegistryLoadFailed bool
}

// Options configure one resolution pass.
type Options struct {
	// InstanceID scopes selection to one configured integration
	// instance. Empty means "all instances" (global scan).
	InstanceID string

	// Integration selects variant-specific behavior: Deco trackers
	// require attribute confirmation even when registry-owned, and
	// only Omada gets the sensor metrics aggregation pass.
	Integration Integration

	// SpeedUnit controls display formatting of speed fields only.
	SpeedUnit SpeedUnit

	// Now anchors uptime-from-timestamp parsing. Zero means time.Now.
	Now time.Time
}

// CanonicalRow is the normalized output record for one device. Every
// textual field is either a meaningful formatted string or Unknown;
// every numeric twin field is either a finite value or nil, never NaN.
type CanonicalRow struct {
	EntityID      string
	Name          string // raw display name, may be ""
	NameDisplay   string // formatted: Name or Unknown
	MAC           string // as reported
	MACNormalized string // lowercase hex, no separators

	Online      bool
	StatusColor string // "online" or "offline"

	Connection     string // display label
	ConnectionType ConnectionType
	Band           string // display label
	BandType       Band

	IP       string
	Hostname string

	PacketsSent     string
	PacketsReceived string

	UpSpeed       string // formatted per SpeedUnit
	DownSpeed     string
	UpSpeedMbps   *float64
	DownSpeedMbps *float64

	TxRate     string // formatted link rate
	RxRate     string
	TxRateMbps *float64
	RxRateMbps *float64

	OnlineTime string // formatted duration

	Downloaded        string // formatted bytes
	Uploaded          string
	TrafficUsage      string // formatted bytes
	TrafficUsageBytes *float64

	Signal      string // formatted dBm
	SignalDbm   *float64
	SignalLevel string // "excellent", "good", "fair", "weak" or ""
	SNR         string
	SNRDb       *float64

	PowerSave string // "on", "off" or Unknown

	DeviceType   string
	DeviceModel  string
	Firmware     string
	DeviceStatus string
	DeviceKey    string // owning device grouping key, may be ""
}
