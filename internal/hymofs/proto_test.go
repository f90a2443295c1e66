package hymofs

import (
	"strings"
	"testing"
)

func TestParseRules(t *testing.T) {
	out := strings.Join([]string{
		"ADD /system/etc/hosts /data/adb/modules/a/system/etc/hosts",
		"HIDE /system/app/Bloat",
		"MERGE /system/fonts /data/adb/modules/b/system/fonts",
		"add /vendor/etc/x /data/adb/modules/c/vendor/etc/x",
		"",
		"GARBAGE",
	}, "\n")

	rules := ParseRules(out)
	if len(rules) != 4 {
		t.Fatalf("expected 4 rules, got %d", len(rules))
	}

	if rules[0].Op != OpAdd || rules[0].Src != "/system/etc/hosts" {
		t.Fatalf("unexpected first rule: %+v", rules[0])
	}
	if rules[1].Op != OpHide || rules[1].Src != "/system/app/Bloat" || rules[1].Target != "" {
		t.Fatalf("unexpected hide rule: %+v", rules[1])
	}
	if rules[2].Op != OpMerge || rules[2].Target != "/data/adb/modules/b/system/fonts" {
		t.Fatalf("unexpected merge rule: %+v", rules[2])
	}
	// 类别大小写不敏感
	if rules[3].Op != OpAdd {
		t.Fatalf("lowercase type not normalized: %+v", rules[3])
	}
}

func TestParseRulesRoundTrip(t *testing.T) {
	// 解析后的规则重新格式化再解析应当得到同一序列（往返律）
	rules := []Rule{
		{Op: OpAdd, Src: "/system/etc/hosts", Target: "/data/adb/modules/a/system/etc/hosts"},
		{Op: OpHide, Src: "/system/app/Bloat"},
		{Op: OpMerge, Src: "/system/fonts", Target: "/data/adb/modules/b/system/fonts"},
	}

	var sb strings.Builder
	for _, r := range rules {
		if r.Op == OpHide {
			sb.WriteString(string(r.Op) + " " + r.Src + "\n")
		} else {
			sb.WriteString(string(r.Op) + " " + r.Src + " " + r.Target + "\n")
		}
	}

	parsed := ParseRules(sb.String())
	if len(parsed) != len(rules) {
		t.Fatalf("round trip length mismatch: %d != %d", len(parsed), len(rules))
	}
	for i := range rules {
		if parsed[i] != rules[i] {
			t.Fatalf("round trip mismatch at %d: %+v != %+v", i, parsed[i], rules[i])
		}
	}
}

func TestValidatePathBounds(t *testing.T) {
	base := "/" + strings.Repeat("a", MaxPathLen-1)
	if len(base) != MaxPathLen {
		t.Fatalf("fixture length wrong: %d", len(base))
	}
	if err := ValidatePath(base); err != nil {
		t.Fatalf("path of %d bytes should be accepted: %v", MaxPathLen, err)
	}
	if err := ValidatePath(base + "b"); err == nil {
		t.Fatalf("path of %d bytes should be rejected", MaxPathLen+1)
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusAvailable:    "available",
		StatusKernelTooOld: "kernel_too_old",
		StatusModuleTooOld: "module_too_old",
		StatusNotPresent:   "not_present",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
}

func TestModuleIDsFromRules(t *testing.T) {
	rulesText := strings.Join([]string{
		"ADD /system/etc/hosts /data/adb/modules/hosts_mod/system/etc/hosts",
		"ADD /system/etc/other /data/adb/modules/hosts_mod/system/etc/other",
		"ADD /system/lib/x.so /dev/hymo_mirror/libfix/system/lib/x.so",
		"HIDE /system/app/Bloat",
	}, "\n")

	ids := ModuleIDsFromRules(rulesText, "/data/adb/modules", "/dev/hymo_mirror")
	if len(ids) != 2 {
		t.Fatalf("expected 2 module ids, got %v", ids)
	}
	if ids[0] != "hosts_mod" || ids[1] != "libfix" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
