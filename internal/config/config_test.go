package config

import (
	"path/filepath"
	"testing"
)

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.Moduledir = "/data/adb/modules"
	cfg.FsTypeName = "erofs"
	cfg.Partitions = []string{"my_custom"}
	cfg.EnableStealth = true
	cfg.UnameRelease = "5.15.0-test"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save config: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if loaded.FsType() != FsErofs {
		t.Fatalf("fs_type lost: %v", loaded.FsType())
	}
	if !loaded.EnableStealth {
		t.Fatalf("enable_stealth lost")
	}
	if loaded.UnameRelease != "5.15.0-test" {
		t.Fatalf("uname_release lost: %q", loaded.UnameRelease)
	}
	if len(loaded.Partitions) != 1 || loaded.Partitions[0] != "my_custom" {
		t.Fatalf("partitions lost: %v", loaded.Partitions)
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load missing config: %v", err)
	}
	if cfg.Moduledir != DefaultModuleDir {
		t.Fatalf("default moduledir wrong: %q", cfg.Moduledir)
	}
	if cfg.FsType() != FsAuto {
		t.Fatalf("default fs_type wrong: %v", cfg.FsType())
	}
	if !cfg.HymofsEnabled {
		t.Fatalf("hymofs should default to enabled")
	}
}

func TestMergeCLIPrecedence(t *testing.T) {
	cfg := Default()
	cfg.Moduledir = "/from/config"
	cfg.Partitions = []string{"a"}

	cfg.MergeCLI("/from/cli", "", "", true, []string{"b", "a"})

	if cfg.Moduledir != "/from/cli" {
		t.Fatalf("cli moduledir should win: %q", cfg.Moduledir)
	}
	if cfg.Mountsource != DefaultMountSource {
		t.Fatalf("mountsource should keep default: %q", cfg.Mountsource)
	}
	if !cfg.Verbose {
		t.Fatalf("verbose flag lost")
	}
	if len(cfg.Partitions) != 2 {
		t.Fatalf("partitions should union without duplicates: %v", cfg.Partitions)
	}
}

func TestAllPartitions(t *testing.T) {
	cfg := Default()
	cfg.Partitions = []string{"oem", "vendor"}

	parts := cfg.AllPartitions()
	if parts[0] != "system" {
		t.Fatalf("system must come first: %v", parts)
	}

	seen := make(map[string]int)
	for _, p := range parts {
		seen[p]++
	}
	if seen["vendor"] != 1 {
		t.Fatalf("vendor duplicated: %v", parts)
	}
	if seen["oem"] != 1 {
		t.Fatalf("oem missing: %v", parts)
	}
}

func TestEffectiveMirrorPath(t *testing.T) {
	cfg := Default()
	if cfg.EffectiveMirrorPath() != MirrorDev {
		t.Fatalf("default mirror path wrong: %q", cfg.EffectiveMirrorPath())
	}

	cfg.Tempdir = "/tmp/hymo"
	if cfg.EffectiveMirrorPath() != "/tmp/hymo" {
		t.Fatalf("tempdir should override default: %q", cfg.EffectiveMirrorPath())
	}

	cfg.MirrorPath = "/dev/custom"
	if cfg.EffectiveMirrorPath() != "/dev/custom" {
		t.Fatalf("mirror_path should win: %q", cfg.EffectiveMirrorPath())
	}
}

func TestParseFsType(t *testing.T) {
	if ParseFsType("ext4") != FsExt4 {
		t.Fatalf("ext4 parse failed")
	}
	if ParseFsType("bogus") != FsAuto {
		t.Fatalf("unknown fs_type should fall back to auto")
	}
}

func TestModuleRuleHelpers(t *testing.T) {
	rules := make(map[string][]ModuleRule)

	if updated := SetModuleRule(rules, "mod", "/system/etc", "magic"); updated {
		t.Fatalf("first set should not report update")
	}
	if updated := SetModuleRule(rules, "mod", "/system/etc", "overlay"); !updated {
		t.Fatalf("second set should report update")
	}
	if rules["mod"][0].Mode != "overlay" {
		t.Fatalf("rule mode not updated: %+v", rules["mod"])
	}

	if !RemoveModuleRule(rules, "mod", "/system/etc") {
		t.Fatalf("remove should find the rule")
	}
	if _, ok := rules["mod"]; ok {
		t.Fatalf("empty rule list should be dropped")
	}
	if RemoveModuleRule(rules, "mod", "/system/etc") {
		t.Fatalf("remove on missing rule should report false")
	}
}

func TestValidMode(t *testing.T) {
	for _, mode := range []string{"auto", "hymofs", "overlay", "magic", "none"} {
		if !ValidMode(mode) {
			t.Errorf("mode %q should be valid", mode)
		}
	}
	if ValidMode("bogus") {
		t.Errorf("bogus mode should be invalid")
	}
}
