package roster

import (
	"math"
	"strconv"
	"strings"
)

// Per-field attribute alias lists. Each logical field has accumulated
// several attribute-name spellings across vendor firmwares and
// integration versions; aliases are tried in fixed priority order and
// the first present wins. Sourced from the router ("downloadSpeed",
// "macaddr", "txpkts"...), Deco ("down_speed", "wire_type",
// "custom_nickname"...) and Omada ("connectType", "trafficDown"...)
// payload vocabularies.
var (
	aliasMAC        = []string{"mac", "macaddr", "mac_address", "wire_mac"}
	aliasIP         = []string{"ip", "ip_address", "ipaddr", "device_ip"}
	aliasHostname   = []string{"hostname", "host_name", "dns_name"}
	aliasName       = []string{"friendly_name", "name", "custom_nickname", "nickname", "client_name"}
	aliasDownSpeed  = []string{"down_speed", "downloadSpeed", "download_speed", "rx_speed"}
	aliasUpSpeed    = []string{"up_speed", "uploadSpeed", "upload_speed", "tx_speed"}
	aliasTxRate     = []string{"txRate", "tx_rate"}
	aliasRxRate     = []string{"rxRate", "rx_rate"}
	aliasSignal     = []string{"signal", "rssi", "signal_level", "signal_strength"}
	aliasSNR        = []string{"snr"}
	aliasUptime     = []string{"onlineTime", "online_time", "uptime", "connection_time", "connected_time"}
	aliasTraffic    = []string{"trafficUsage", "traffic_usage"}
	aliasTrafficDown = []string{"traffic_down", "trafficDown", "download"}
	aliasTrafficUp   = []string{"traffic_up", "trafficUp", "upload"}
	aliasPktsSent   = []string{"txpkts", "tx_packets", "packets_sent"}
	aliasPktsRecv   = []string{"rxpkts", "rx_packets", "packets_received"}
	aliasBand       = []string{"band", "connection_type", "radio", "wifi_mode"}
	aliasSSID       = []string{"ssid", "essid", "wifi_ssid", "ap_ssid"}
	aliasGuest      = []string{"guest", "is_guest"}
	aliasWireless   = []string{"wireless", "is_wireless"}
	aliasWireType   = []string{"wire_type", "connection", "connect_type", "connectType"}
	aliasInterface  = []string{"interface"}
	aliasSwitchPort = []string{"switch_port", "port"}
	aliasSwitchName = []string{"switch_name"}
	aliasSwitchMAC  = []string{"switch_mac"}
	aliasAPName     = []string{"ap_name", "uplink_name"}
	aliasAPMAC      = []string{"ap_mac", "deco_mac"}
	aliasPowerSave  = []string{"power_save", "powersave", "power_saving"}
	aliasDevType    = []string{"device_type", "type", "deviceTag"}
	aliasModel      = []string{"model", "device_model", "hardware_version", "hardware_ver"}
	aliasFirmware   = []string{"firmware_version", "software_ver", "firmware"}
	aliasStatus     = []string{"status", "group_status", "inet_status"}
	aliasOnline     = []string{"online"}
)

// firstAttr tries aliases in priority order and returns the first raw
// value present in the bag. Input order, not map iteration order,
// decides ties.
func firstAttr(attrs map[string]any, aliases []string) (any, bool) {
	for _, k := range aliases {
		if v, ok := attrs[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// attrString resolves an attribute to a non-empty trimmed string.
// Numeric values are rendered; other types are rejected.
func attrString(attrs map[string]any, aliases ...string) (string, bool) {
	v, ok := firstAttr(attrs, aliases)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", false
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		if t {
			return "on", true
		}
		return "off", true
	}
	return "", false
}

// attrFloat resolves an attribute to a finite float64. String values
// are parsed; NaN and infinities are rejected so they can never reach
// a CanonicalRow.
func attrFloat(attrs map[string]any, aliases ...string) (float64, bool) {
	v, ok := firstAttr(attrs, aliases)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case float32:
		return toFloat(float64(t))
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// attrBool resolves an attribute to a boolean. Accepts native bools
// and the usual string/numeric spellings ("on", "yes", "1", ...).
func attrBool(attrs map[string]any, aliases ...string) (bool, bool) {
	v, ok := firstAttr(attrs, aliases)
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "on", "yes", "1", "enabled":
			return true, true
		case "false", "off", "no", "0", "disabled":
			return false, true
		}
		return false, false
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	}
	return false, false
}

// normalizeMAC lowercases a MAC address and strips separators, leaving
// bare hex. Returns "" for input that is clearly not a MAC.
func normalizeMAC(mac string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(mac)) {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f':
			b.WriteRune(r)
		case r == ':' || r == '-' || r == '.' || r == ' ':
			// separator, skip
		default:
			return ""
		}
	}
	if b.Len() != 12 {
		return ""
	}
	return b.String()
}
