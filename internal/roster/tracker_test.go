package roster

import (
	"reflect"
	"testing"
)

func trackerState(id, mac string) StateRecord {
	return StateRecord{
		ID:    id,
		Value: "home",
		Attributes: map[string]any{
			"source_type": "router",
			"mac":         mac,
		},
	}
}

func stateIDs(states []StateRecord) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = s.ID
	}
	return out
}

func TestSelectTrackersGlobalScan(t *testing.T) {
	snap := Snapshot{
		States: map[string]StateRecord{
			"device_tracker.phone":  trackerState("device_tracker.phone", "aa:bb:cc:00:00:01"),
			"device_tracker.laptop": trackerState("device_tracker.laptop", "aa:bb:cc:00:00:02"),
			// GPS tracker from another integration must not leak in.
			"device_tracker.car": {ID: "device_tracker.car", Value: "home", Attributes: map[string]any{"source_type": "gps"}},
			"sensor.cpu":         {ID: "sensor.cpu", Value: "12"},
		},
	}
	g := BuildGraph(snap)

	got := g.SelectTrackers("", IntegrationRouter)
	want := []string{"device_tracker.laptop", "device_tracker.phone"}
	if !reflect.DeepEqual(stateIDs(got), want) {
		t.Errorf("global scan = %v, want %v", stateIDs(got), want)
	}
}

func TestSelectTrackersRegistryFailureDegradesToGlobal(t *testing.T) {
	states := map[string]StateRecord{
		"device_tracker.phone": trackerState("device_tracker.phone", "aa:bb:cc:00:00:01"),
	}

	failed := BuildGraph(Snapshot{States: states, RegistryLoadFailed: true})
	global := BuildGraph(Snapshot{States: states})

	withInstance := failed.SelectTrackers("instance-1", IntegrationRouter)
	noInstance := global.SelectTrackers("", IntegrationRouter)

	if !reflect.DeepEqual(stateIDs(withInstance), stateIDs(noInstance)) {
		t.Errorf("registry failure with instance = %v, want same as global scan %v",
			stateIDs(withInstance), stateIDs(noInstance))
	}
}

func TestSelectTrackersScopedRegistry(t *testing.T) {
	snap := Snapshot{
		States: map[string]StateRecord{
			"device_tracker.mine":   trackerState("device_tracker.mine", "aa:bb:cc:00:00:01"),
			"device_tracker.theirs": trackerState("device_tracker.theirs", "aa:bb:cc:00:00:02"),
		},
		Registry: []RegistryEntry{
			{ID: "device_tracker.mine", IntegrationID: "tplink_router", InstanceID: "instance-1"},
			{ID: "device_tracker.theirs", IntegrationID: "tplink_router", InstanceID: "instance-2"},
		},
	}
	g := BuildGraph(snap)

	got := g.SelectTrackers("instance-1", IntegrationRouter)
	if len(got) != 1 || got[0].ID != "device_tracker.mine" {
		t.Errorf("scoped selection = %v, want [device_tracker.mine]", stateIDs(got))
	}
}

func TestSelectTrackersPreciseMatchNotDiluted(t *testing.T) {
	// The weak join would also match device_tracker.other, but rung 3
	// already found a precise match — later rungs must not run.
	snap := Snapshot{
		States: map[string]StateRecord{
			"device_tracker.mine":  trackerState("device_tracker.mine", "aa:bb:cc:00:00:01"),
			"device_tracker.other": trackerState("device_tracker.other", "aa:bb:cc:00:00:03"),
		},
		Registry: []RegistryEntry{
			{ID: "device_tracker.mine", IntegrationID: "tplink_router", InstanceID: "instance-1"},
			{ID: "device_tracker.other", IntegrationID: "tplink_router", InstanceID: "instance-1", DeviceKey: "dev-x"},
		},
	}
	g := BuildGraph(snap)

	got := g.SelectTrackers("instance-1", IntegrationRouter)
	want := []string{"device_tracker.mine", "device_tracker.other"}
	if !reflect.DeepEqual(stateIDs(got), want) {
		t.Errorf("selection = %v, want %v", stateIDs(got), want)
	}
}

func TestSelectTrackersDecoRequiresConfirmation(t *testing.T) {
	// Registry claims ownership of a tracker with no router marker.
	// Deco requires attribute confirmation; the router variant trusts
	// registry ownership alone.
	snap := Snapshot{
		States: map[string]StateRecord{
			"device_tracker.bare": {ID: "device_tracker.bare", Value: "home", Attributes: map[string]any{}},
		},
		Registry: []RegistryEntry{
			{ID: "device_tracker.bare", IntegrationID: "tplink_deco", InstanceID: "instance-1"},
		},
	}
	g := BuildGraph(snap)

	if got := g.SelectTrackers("instance-1", IntegrationDeco); len(got) != 0 {
		t.Errorf("deco selection = %v, want empty", stateIDs(got))
	}
	if got := g.SelectTrackers("instance-1", IntegrationRouter); len(got) != 1 {
		t.Errorf("router selection = %v, want 1 tracker", stateIDs(got))
	}
}

func TestSelectTrackersUnownedEntriesNeverScoped(t *testing.T) {
	// Registry rows with no instance id are not owned by any instance:
	// they must not match a scoped selection, only the global scan.
	snap := Snapshot{
		States: map[string]StateRecord{
			"device_tracker.unowned": trackerState("device_tracker.unowned", "aa:bb:cc:00:00:09"),
		},
		Registry: []RegistryEntry{
			{ID: "device_tracker.unowned", IntegrationID: "tplink_router"},
			{ID: "sensor.noise", IntegrationID: "tplink_router", InstanceID: "instance-1"},
		},
	}
	g := BuildGraph(snap)

	if got := g.SelectTrackers("instance-1", IntegrationRouter); len(got) != 0 {
		t.Errorf("scoped selection = %v, want empty", stateIDs(got))
	}
	if got := g.SelectTrackers("", IntegrationRouter); len(got) != 1 {
		t.Errorf("global selection = %v, want 1 tracker", stateIDs(got))
	}
}

func TestSelectTrackersWeakJoinIgnoresCategory(t *testing.T) {
	// Some installs expose marker-bearing clients under non-tracker
	// categories. Rung 3 finds no device_tracker rows, so the weak join
	// must pick the state up on instance ownership plus the attribute
	// marker alone, regardless of its category.
	snap := Snapshot{
		States: map[string]StateRecord{
			"sensor.client1": {
				ID:    "sensor.client1",
				Value: "home",
				Attributes: map[string]any{
					"source_type": "router",
					"mac":         "aa:bb:cc:00:00:07",
				},
			},
			// Owned by the instance but marker-free: stays out.
			"sensor.client1_uptime": {ID: "sensor.client1_uptime", Value: "3600"},
		},
		Registry: []RegistryEntry{
			{ID: "sensor.client1", IntegrationID: "tplink_router", InstanceID: "instance-1"},
			{ID: "sensor.client1_uptime", IntegrationID: "tplink_router", InstanceID: "instance-1"},
		},
	}
	g := BuildGraph(snap)

	got := g.SelectTrackers("instance-1", IntegrationRouter)
	if len(got) != 1 || got[0].ID != "sensor.client1" {
		t.Errorf("weak join selection = %v, want [sensor.client1]", stateIDs(got))
	}
}

func TestSelectTrackersDeviceHop(t *testing.T) {
	// The tracker's registry row carries no instance id at all — only
	// the device-graph hop can tie it to the instance, through a
	// sibling sensor owned by the same device.
	snap := Snapshot{
		States: map[string]StateRecord{
			"device_tracker.orphan": trackerState("device_tracker.orphan", "aa:bb:cc:00:00:04"),
			"sensor.orphan_signal":  {ID: "sensor.orphan_signal", Value: "-60"},
		},
		Registry: []RegistryEntry{
			{ID: "device_tracker.orphan", IntegrationID: "omada", DeviceKey: "dev-1"},
			{ID: "sensor.orphan_signal", IntegrationID: "omada", InstanceID: "instance-1", DeviceKey: "dev-1"},
		},
	}
	g := BuildGraph(snap)

	got := g.SelectTrackers("instance-1", IntegrationOmada)
	if len(got) != 1 || got[0].ID != "device_tracker.orphan" {
		t.Errorf("device hop selection = %v, want [device_tracker.orphan]", stateIDs(got))
	}
}

func TestSelectTrackersEmptyIsLegitimate(t *testing.T) {
	snap := Snapshot{
		States: map[string]StateRecord{
			"sensor.cpu": {ID: "sensor.cpu", Value: "12"},
		},
		Registry: []RegistryEntry{
			{ID: "sensor.cpu", IntegrationID: "omada", InstanceID: "instance-1"},
		},
	}
	g := BuildGraph(snap)

	if got := g.SelectTrackers("instance-1", IntegrationOmada); len(got) != 0 {
		t.Errorf("selection = %v, want empty", stateIDs(got))
	}
}
