package roster

import "strings"

// trackerCategory is the state ID category of presence trackers.
const trackerCategory = "device_tracker"

// routerSourced reports whether a state record carries the marker
// attributes identifying it as belonging to this family of network
// integrations. Used for the registry-free global scan and to confirm
// weak registry joins: a Home Assistant install also tracks phones via
// GPS apps, and those must never leak into the roster.
func routerSourced(s StateRecord) bool {
	if b, ok := attrBool(s.Attributes, "router"); ok && b {
		return true
	}
	if st, ok := attrString(s.Attributes, "source_type"); ok && strings.EqualFold(st, "router") {
		return true
	}
	// Vendor fingerprint: an addressed client plus at least one
	// telemetry attribute from the known vocabulary.
	_, hasMAC := firstAttr(s.Attributes, aliasMAC)
	_, hasIP := firstAttr(s.Attributes, aliasIP)
	if !hasMAC && !hasIP {
		return false
	}
	for _, aliases := range [][]string{aliasDownSpeed, aliasUpSpeed, aliasTxRate, aliasRxRate, aliasTraffic, aliasTrafficDown, aliasBand} {
		if _, ok := firstAttr(s.Attributes, aliases); ok {
			return true
		}
	}
	return false
}

// selectRung is one strategy of the fallback ladder. It returns its
// matches; an empty result means "try the next, weaker rung".
type selectRung func() []StateRecord

// firstNonEmpty applies rungs in order and returns the first non-empty
// result. A later, weaker rung must never dilute a precise earlier
// match, so results are never unioned.
func firstNonEmpty(rungs ...selectRung) []StateRecord {
	for _, r := range rungs {
		if out := r(); len(out) > 0 {
			return out
		}
	}
	return nil
}

// SelectTrackers returns the presence-tracker state records for the
// given integration instance, using a strict fallback ladder over the
// eventually-consistent registry:
//
//  1. No instance scoping requested: global attribute-marker scan.
//  2. Registry failed to load or is empty: same global scan — without
//     a registry, per-instance scoping is impossible, so degrade to
//     best effort rather than returning nothing.
//  3. Registry rows with matching instance and tracker category,
//     resolved to states. Deco additionally requires the attribute
//     marker; the other variants trust registry ownership alone.
//  4. Weaker join: any state whose ID appears in the registry under
//     this instance (category ignored), confirmed by the marker.
//  5. Device-graph hop: trackers whose registry device key belongs to
//     a device owned by the instance through non-tracker entities.
//  6. Empty — a populated registry with zero resolvable trackers is a
//     legitimate "no devices yet" state, not an error.
func (g *Graph) SelectTrackers(instanceID string, integration Integration) []StateRecord {
	global := func() []StateRecord {
		var out []StateRecord
		for _, id := range g.stateIDs {
			s := g.states[id]
			if s.Category() == trackerCategory && routerSourced(s) {
				out = append(out, s)
			}
		}
		return out
	}

	if instanceID == "" {
		return global()
	}
	if g.loadFailed || g.RegistryEmpty() {
		return global()
	}

	confirmNeeded := integration == IntegrationDeco

	scoped := func() []StateRecord {
		var out []StateRecord
		for _, e := range g.registry {
			if e.InstanceID != instanceID {
				continue
			}
			s, ok := g.State(e.ID)
			if !ok || s.Category() != trackerCategory {
				continue
			}
			if confirmNeeded && !routerSourced(s) {
				continue
			}
			out = append(out, s)
		}
		return out
	}

	weakJoin := func() []StateRecord {
		var out []StateRecord
		for _, id := range g.stateIDs {
			e, ok := g.Entry(id)
			if !ok || e.InstanceID != instanceID {
				continue
			}
			// Category deliberately ignored: some installs expose
			// marker-bearing clients under sensor or other categories.
			// The attribute marker alone confirms the join.
			s := g.states[id]
			if !routerSourced(s) {
				continue
			}
			out = append(out, s)
		}
		return out
	}

	deviceHop := func() []StateRecord {
		// Device keys owned by the instance through non-tracker rows.
		// Tracker-only rows are excluded to avoid self-reference: a
		// tracker must not vouch for its own device key.
		owned := make(map[string]bool)
		for _, e := range g.registry {
			if e.InstanceID != instanceID || e.DeviceKey == "" {
				continue
			}
			if s, ok := g.State(e.ID); ok && s.Category() == trackerCategory {
				continue
			}
			owned[e.DeviceKey] = true
		}
		if len(owned) == 0 {
			return nil
		}
		var out []StateRecord
		for _, id := range g.stateIDs {
			s := g.states[id]
			if s.Category() != trackerCategory {
				continue
			}
			e, ok := g.Entry(id)
			if !ok || e.DeviceKey == "" || !owned[e.DeviceKey] {
				continue
			}
			out = append(out, s)
		}
		return out
	}

	return firstNonEmpty(scoped, weakJoin, deviceHop)
}
