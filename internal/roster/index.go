package roster

import "sort"

// Graph is the identity graph index: O(1) lookups over the three flat
// snapshot collections, rebuilt from scratch on every resolution pass.
// It performs no validation — duplicate IDs overwrite earlier entries
// (last-write-wins), mirroring the flat last-known-state registry it
// is built from. Unmapped IDs are legal and yield "no match" downstream.
type Graph struct {
	states      map[string]StateRecord
	stateIDs    []string // sorted, for deterministic global scans
	registry    []RegistryEntry
	entryByID   map[string]RegistryEntry
	deviceByKey map[string]DeviceEntry
	byDevice    map[string][]RegistryEntry // registry input order preserved
	loadFailed  bool
}

// BuildGraph indexes a snapshot. The snapshot collections are
// referenced, not copied; the graph must not outlive them.
func BuildGraph(snap Snapshot) *Graph {
	g := &Graph{
		states:      snap.States,
		registry:    snap.Registry,
		entryByID:   make(map[string]RegistryEntry, len(snap.Registry)),
		deviceByKey: make(map[string]DeviceEntry, len(snap.Devices)),
		byDevice:    make(map[string][]RegistryEntry),
		loadFailed:  snap.RegistryLoadFailed,
	}

	g.stateIDs = make([]string, 0, len(snap.States))
	for id := range snap.States {
		g.stateIDs = append(g.stateIDs, id)
	}
	sort.Strings(g.stateIDs)

	for _, e := range snap.Registry {
		if e.ID == "" {
			continue // malformed rows are dropped silently
		}
		g.entryByID[e.ID] = e
		if e.DeviceKey != "" {
			g.byDevice[e.DeviceKey] = append(g.byDevice[e.DeviceKey], e)
		}
	}

	for _, d := range snap.Devices {
		if d.Key == "" {
			continue
		}
		g.deviceByKey[d.Key] = d
	}

	return g
}

// State returns the state record for id, if present.
func (g *Graph) State(id string) (StateRecord, bool) {
	s, ok := g.states[id]
	return s, ok
}

// Entry returns the registry entry for id, if present.
func (g *Graph) Entry(id string) (RegistryEntry, bool) {
	e, ok := g.entryByID[id]
	return e, ok
}

// Device returns the device entry for key, if present.
func (g *Graph) Device(key string) (DeviceEntry, bool) {
	d, ok := g.deviceByKey[key]
	return d, ok
}

// DeviceEntries returns the registry entries grouped under key, in
// registry input order.
func (g *Graph) DeviceEntries(key string) []RegistryEntry {
	return g.byDevice[key]
}

// RegistryEmpty reports whether the registry has no usable entries.
func (g *Graph) RegistryEmpty() bool {
	return len(g.entryByID) == 0
}
