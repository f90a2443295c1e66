package state

import (
	"encoding/json"
	"testing"
)

func TestRuntimeStateJSONRoundTrip(t *testing.T) {
	st := &RuntimeState{
		StorageMode:      "tmpfs",
		MountPoint:       "/dev/hymo_mirror",
		OverlayModuleIDs: []string{"a"},
		MagicModuleIDs:   []string{"b"},
		HymofsModuleIDs:  []string{"c", "d"},
		ActiveMounts:     []string{"system", "vendor"},
		NukeActive:       true,
		Pid:              42,
		HymofsMismatch:   true,
		MismatchMessage:  "Kernel version is lower than module version. Please update your kernel.",
	}

	data, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got RuntimeState
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.StorageMode != "tmpfs" || got.Pid != 42 || !got.NukeActive {
		t.Fatalf("round trip lost fields: %+v", got)
	}
	if len(got.HymofsModuleIDs) != 2 || got.HymofsModuleIDs[0] != "c" {
		t.Fatalf("module ids lost: %+v", got.HymofsModuleIDs)
	}
	if !got.HymofsMismatch || got.MismatchMessage == "" {
		t.Fatalf("mismatch fields lost: %+v", got)
	}
}

func TestMismatchFieldsOmittedWhenClean(t *testing.T) {
	data, err := json.Marshal(&RuntimeState{StorageMode: "ext4"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["mismatch"]; ok {
		t.Fatalf("mismatch should be omitted when false")
	}
	if _, ok := raw["mismatch_message"]; ok {
		t.Fatalf("mismatch_message should be omitted when empty")
	}
}

func TestAddRemoveHymofsModule(t *testing.T) {
	st := &RuntimeState{}

	if !st.AddHymofsModule("a") {
		t.Fatalf("first add should change state")
	}
	if st.AddHymofsModule("a") {
		t.Fatalf("duplicate add should be a no-op")
	}
	st.AddHymofsModule("b")

	if !st.RemoveHymofsModule("a") {
		t.Fatalf("remove should find module")
	}
	if st.RemoveHymofsModule("a") {
		t.Fatalf("second remove should be a no-op")
	}
	if len(st.HymofsModuleIDs) != 1 || st.HymofsModuleIDs[0] != "b" {
		t.Fatalf("unexpected ids after removal: %v", st.HymofsModuleIDs)
	}
}
