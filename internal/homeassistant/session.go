package homeassistant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nugget/netroster/internal/roster"
)

// registrySource is the slice of WSClient the session needs. Narrowed
// to an interface so snapshot assembly is testable without a live
// WebSocket.
type registrySource interface {
	GetEntityRegistry(ctx context.Context) ([]EntityRegistryEntry, error)
	GetDeviceRegistry(ctx context.Context) ([]DeviceRegistryEntry, error)
}

// stateSource is the slice of Client the session needs.
type stateSource interface {
	GetStates(ctx context.Context) ([]State, error)
}

// Session fetches resolver snapshots from one Home Assistant install.
// States come from REST; the entity and device registries come from the
// WebSocket API. A failed states fetch is a hard error — there is
// nothing to resolve without states — while a failed registry fetch
// degrades the snapshot (RegistryLoadFailed) instead of aborting it.
type Session struct {
	states   stateSource
	registry registrySource
	logger   *slog.Logger
}

// NewSession wires a REST client and a connected WebSocket client into
// a snapshot source.
func NewSession(rest *Client, ws *WSClient, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{states: rest, registry: ws, logger: logger}
}

// FetchSnapshot retrieves one full resolver input: all states plus both
// registries.
func (s *Session) FetchSnapshot(ctx context.Context) (roster.Snapshot, error) {
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}

	states, err := s.states.GetStates(ctx)
	if err != nil {
		return roster.Snapshot{}, fmt.Errorf("fetch states: %w", err)
	}

	snap := roster.Snapshot{
		States: make(map[string]roster.StateRecord, len(states)),
	}
	for _, st := range states {
		snap.States[st.EntityID] = roster.StateRecord{
			ID:         st.EntityID,
			Value:      st.State,
			Attributes: st.Attributes,
		}
	}

	entries, err := s.registry.GetEntityRegistry(ctx)
	if err != nil {
		logger.Warn("entity registry unavailable, degrading to global scan", "error", err)
		snap.RegistryLoadFailed = true
		return snap, nil
	}
	snap.Registry = convertRegistry(entries)

	devices, err := s.registry.GetDeviceRegistry(ctx)
	if err != nil {
		// Rows lose device backfill but selection still works.
		logger.Warn("device registry unavailable", "error", err)
		return snap, nil
	}
	snap.Devices = convertDevices(devices)

	return snap, nil
}

// convertRegistry maps entity registry rows to resolver registry
// entries. Disabled entities are kept: they carry ownership facts even
// when they have no live state.
func convertRegistry(entries []EntityRegistryEntry) []roster.RegistryEntry {
	out := make([]roster.RegistryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, roster.RegistryEntry{
			ID:            e.EntityID,
			IntegrationID: e.Platform,
			InstanceID:    e.ConfigEntryID,
			DeviceKey:     e.DeviceID,
		})
	}
	return out
}

// convertDevices maps device registry rows to resolver device entries.
// Both identifier pair lists collapse into one kind/value list; MACs
// arrive through Connections as ["mac", value].
func convertDevices(devices []DeviceRegistryEntry) []roster.DeviceEntry {
	out := make([]roster.DeviceEntry, 0, len(devices))
	for _, d := range devices {
		entry := roster.DeviceEntry{
			Key:             d.ID,
			DisplayName:     d.Name,
			UserDisplayName: d.NameByUser,
			Model:           d.Model,
			Manufacturer:    d.Manufacturer,
			FirmwareVersion: d.SWVersion,
		}
		for _, pair := range d.Connections {
			if len(pair) == 2 {
				entry.Identifiers = append(entry.Identifiers, roster.Identifier{Kind: pair[0], Value: pair[1]})
			}
		}
		for _, pair := range d.Identifiers {
			if len(pair) == 2 {
				entry.Identifiers = append(entry.Identifiers, roster.Identifier{Kind: pair[0], Value: pair[1]})
			}
		}
		out = append(out, entry)
	}
	return out
}
