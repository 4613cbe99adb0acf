// Package mqtt republishes resolved roster rows to an MQTT broker
// using Home Assistant MQTT discovery. Each network client appears as
// its own HA device with a device_tracker entity plus signal and
// throughput sensors, so downstream consumers get the canonical view
// without talking to the router integrations directly.
//
// The publisher uses Eclipse Paho v2's [autopaho] package for
// connection management with automatic reconnection. On every
// (re-)connect it republishes the retained discovery config payloads
// seen so far and a birth message ("online") to the availability
// topic. A will message ensures the availability topic transitions to
// "offline" on unexpected disconnects.
package mqtt
