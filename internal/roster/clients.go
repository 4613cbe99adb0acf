package roster

import "strings"

// knownClient is one entry of a controller-reported client list found
// embedded in sibling sensor attributes (the Omada "known clients"
// insight list). Used to backfill IP/name/hostname on rows the tracker
// attributes left unknown.
type knownClient struct {
	Name     string
	IP       string
	MAC      string
	Hostname string
}

// clientIndex holds two independent lookup maps, consulted in fixed
// priority order: a MAC match always beats a name match, even when
// both would resolve to different records. The maps are deliberately
// never merged so that guarantee survives.
type clientIndex struct {
	byMAC  map[string]knownClient
	byName map[string]knownClient
}

// clientListKeys are the attribute names under which integrations
// embed client lists.
var clientListKeys = []string{"known_clients", "clients", "client_list"}

// buildClientIndex scans sensor states for embedded client lists and
// indexes them by normalized MAC and by normalized display name.
// States are visited in sorted-ID order and the first occurrence of a
// key wins, keeping the index deterministic across passes.
func buildClientIndex(g *Graph) clientIndex {
	ci := clientIndex{
		byMAC:  make(map[string]knownClient),
		byName: make(map[string]knownClient),
	}

	for _, id := range g.stateIDs {
		s := g.states[id]
		if s.Category() != "sensor" {
			continue
		}
		raw, ok := firstAttr(s.Attributes, clientListKeys)
		if !ok {
			continue
		}
		list, ok := raw.([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			kc := knownClient{}
			kc.Name, _ = attrString(m, aliasName...)
			kc.IP, _ = attrString(m, aliasIP...)
			kc.Hostname, _ = attrString(m, aliasHostname...)
			if mac, ok := attrString(m, aliasMAC...); ok {
				kc.MAC = mac
			}
			if norm := normalizeMAC(kc.MAC); norm != "" {
				if _, exists := ci.byMAC[norm]; !exists {
					ci.byMAC[norm] = kc
				}
			}
			if name := strings.ToLower(strings.TrimSpace(kc.Name)); name != "" {
				if _, exists := ci.byName[name]; !exists {
					ci.byName[name] = kc
				}
			}
		}
	}

	return ci
}

// lookup resolves a row to a known client by normalized MAC first,
// falling back to display name only when the MAC finds nothing.
func (ci clientIndex) lookup(normalizedMAC, name string) (knownClient, bool) {
	if normalizedMAC != "" {
		if kc, ok := ci.byMAC[normalizedMAC]; ok {
			return kc, true
		}
	}
	if n := strings.ToLower(strings.TrimSpace(name)); n != "" {
		if kc, ok := ci.byName[n]; ok {
			return kc, true
		}
	}
	return knownClient{}, false
}
