package mqtt

import "github.com/nugget/netroster/internal/buildinfo"

// DeviceInfo holds the Home Assistant device registry fields of one
// discovery payload. Entities belonging to the same network client
// reference the same device block so HA groups them under a single
// device page.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

// TrackerConfig is the JSON payload for an HA MQTT device_tracker
// discovery message. It is published (retained) to the discovery topic
// on every broker (re-)connect.
type TrackerConfig struct {
	Name                string     `json:"name"`
	UniqueID            string     `json:"unique_id"`
	StateTopic          string     `json:"state_topic"`
	AvailabilityTopic   string     `json:"availability_topic"`
	JsonAttributesTopic string     `json:"json_attributes_topic,omitempty"`
	PayloadHome         string     `json:"payload_home"`
	PayloadNotHome      string     `json:"payload_not_home"`
	SourceType          string     `json:"source_type"`
	Device              DeviceInfo `json:"device"`
	Icon                string     `json:"icon,omitempty"`
}

// SensorConfig is the JSON payload for an HA MQTT sensor discovery
// message.
type SensorConfig struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	StateTopic        string     `json:"state_topic"`
	AvailabilityTopic string     `json:"availability_topic"`
	Device            DeviceInfo `json:"device"`
	Icon              string     `json:"icon,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	DeviceClass       string     `json:"device_class,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	EntityCategory    string     `json:"entity_category,omitempty"`
}

// hubIdentifier is the HA device identifier of the publishing service
// itself; per-client devices chain to it with via_device.
func hubIdentifier(instanceID string) string {
	return "netroster_" + instanceID
}

// clientDeviceInfo builds the device block for one network client. The
// client key (normalized MAC when known) is the stable identifier so
// HA entity history survives renames.
func clientDeviceInfo(instanceID, clientKey, name, model string) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{"netroster_client_" + clientKey},
		Name:         name,
		Manufacturer: "netroster",
		Model:        model,
		SWVersion:    buildinfo.Version,
		ViaDevice:    hubIdentifier(instanceID),
	}
}
