package roster

import "strings"

// ConnectionType is the normalized connection classification. Client
// devices resolve to wifi/wired/guest/iot; infrastructure devices
// reported by the Omada controller resolve to their role.
type ConnectionType string

const (
	ConnWifi        ConnectionType = "wifi"
	ConnWired       ConnectionType = "wired"
	ConnGuest       ConnectionType = "guest"
	ConnIoT         ConnectionType = "iot"
	ConnGateway     ConnectionType = "gateway"
	ConnSwitch      ConnectionType = "switch"
	ConnAccessPoint ConnectionType = "accesspoint"
	ConnUnknown     ConnectionType = "unknown"
)

// ConnEvidence carries every field that can influence the connection
// classification, pre-extracted from a state's attribute bag. Boolean
// flags are tri-state: nil means the attribute was absent.
type ConnEvidence struct {
	Guest    *bool
	Wireless *bool

	Interface string // Deco "main"/"guest"/"iot"

	SwitchPort string
	SwitchName string
	SwitchMAC  string

	APName string
	APMAC  string
	SSID   string

	Text       string // free-text connection field
	DeviceType string // "gateway"/"switch"/"ap" style field

	IP  string
	MAC string
}

// connRule is one (predicate, result) pair of the classification
// cascade. Rules are evaluated in order; the first hit wins. The order
// encodes a confidence ranking: explicit booleans outrank inferred
// text, and text outranks absence-of-evidence defaults.
type connRule struct {
	name  string
	apply func(ConnEvidence) (ConnectionType, bool)
}

var connRules = []connRule{
	{"explicit guest flag", func(e ConnEvidence) (ConnectionType, bool) {
		if e.Guest != nil && *e.Guest {
			return ConnGuest, true
		}
		return "", false
	}},
	{"guest interface", func(e ConnEvidence) (ConnectionType, bool) {
		if strings.EqualFold(e.Interface, "guest") {
			return ConnGuest, true
		}
		return "", false
	}},
	{"iot interface", func(e ConnEvidence) (ConnectionType, bool) {
		if strings.EqualFold(e.Interface, "iot") {
			return ConnIoT, true
		}
		return "", false
	}},
	{"explicit wireless flag", func(e ConnEvidence) (ConnectionType, bool) {
		if e.Wireless != nil && *e.Wireless {
			return ConnWifi, true
		}
		return "", false
	}},
	{"wired link evidence", func(e ConnEvidence) (ConnectionType, bool) {
		if e.SwitchPort != "" || e.SwitchName != "" || e.SwitchMAC != "" {
			return ConnWired, true
		}
		return "", false
	}},
	{"access point evidence", func(e ConnEvidence) (ConnectionType, bool) {
		if e.APName != "" || e.APMAC != "" || e.SSID != "" {
			return ConnWifi, true
		}
		return "", false
	}},
	{"explicit wireless=false", func(e ConnEvidence) (ConnectionType, bool) {
		if e.Wireless != nil && !*e.Wireless {
			return ConnWired, true
		}
		return "", false
	}},
	{"free-text keywords", func(e ConnEvidence) (ConnectionType, bool) {
		return classifyConnText(e.Text)
	}},
	{"device type field", func(e ConnEvidence) (ConnectionType, bool) {
		return classifyDeviceType(e.DeviceType)
	}},
	{"addressed but no wireless evidence", func(e ConnEvidence) (ConnectionType, bool) {
		if e.IP != "" || e.MAC != "" {
			return ConnWired, true
		}
		return "", false
	}},
}

// classifyConnText scans a free-text connection field for wired/wifi
// keywords. Wired keywords are tested first so "wired via switch" does
// not trip the "wifi" scan through a stray substring.
func classifyConnText(text string) (ConnectionType, bool) {
	lc := strings.ToLower(text)
	if lc == "" {
		return "", false
	}
	for _, kw := range []string{"wired", "ethernet", "lan", "switch", "gateway"} {
		// "wlan" carries the "lan" substring but is wireless evidence.
		if kw == "lan" && strings.Contains(lc, "wlan") {
			continue
		}
		if strings.Contains(lc, kw) {
			return ConnWired, true
		}
	}
	for _, kw := range []string{"wifi", "wireless", "wlan", "ap"} {
		if strings.Contains(lc, kw) {
			return ConnWifi, true
		}
	}
	return "", false
}

// classifyDeviceType resolves the Omada infrastructure role fields.
func classifyDeviceType(dt string) (ConnectionType, bool) {
	switch strings.ToLower(strings.TrimSpace(dt)) {
	case "gateway", "router":
		return ConnGateway, true
	case "switch":
		return ConnSwitch, true
	case "ap", "access point", "access_point", "eap":
		return ConnAccessPoint, true
	}
	return "", false
}

// ClassifyConnection runs the evidence through the ordered rule
// cascade. When no rule fires it echoes the raw free-text field as the
// label, or Unknown when even that is absent. The second return value
// is the display label.
func ClassifyConnection(e ConnEvidence) (ConnectionType, string) {
	for _, r := range connRules {
		if ct, ok := r.apply(e); ok {
			return ct, connLabel(ct, e)
		}
	}
	if e.Text != "" {
		return ConnUnknown, e.Text
	}
	return ConnUnknown, Unknown
}

// connLabel picks the display label for a classified connection. Wifi
// labels prefer the raw text (it often carries the band, e.g. "5GHz")
// over the bare class name.
func connLabel(ct ConnectionType, e ConnEvidence) string {
	if e.Text != "" {
		return e.Text
	}
	switch ct {
	case ConnWifi:
		if e.SSID != "" {
			return e.SSID
		}
		return "WiFi"
	case ConnWired:
		return "Wired"
	case ConnGuest:
		return "Guest"
	case ConnIoT:
		return "IoT"
	case ConnGateway:
		return "Gateway"
	case ConnSwitch:
		return "Switch"
	case ConnAccessPoint:
		return "Access Point"
	}
	return Unknown
}
