//go:build linux
// +build linux

package storage

import (
	"testing"

	"hymod/internal/config"
)

func TestStagesFor(t *testing.T) {
	cases := []struct {
		policy config.FsType
		want   []config.FsType
	}{
		// auto：tmpfs → erofs → ext4
		{config.FsAuto, []config.FsType{config.FsTmpfs, config.FsErofs, config.FsExt4}},
		// 显式 tmpfs 保留向下回退
		{config.FsTmpfs, []config.FsType{config.FsTmpfs, config.FsErofs, config.FsExt4}},
		// 显式 erofs 跳过 tmpfs
		{config.FsErofs, []config.FsType{config.FsErofs, config.FsExt4}},
		// 显式 ext4 不再回退
		{config.FsExt4, []config.FsType{config.FsExt4}},
	}

	for _, c := range cases {
		got := stagesFor(c.policy)
		if len(got) != len(c.want) {
			t.Fatalf("stagesFor(%s) = %v, want %v", c.policy, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("stagesFor(%s) = %v, want %v", c.policy, got, c.want)
			}
		}
	}
}

func TestFormatSize(t *testing.T) {
	cases := map[uint64]string{
		512:                    "512B",
		2 * 1024:               "2K",
		64 * 1024 * 1024:       "64M",
		3 * 1024 * 1024 * 1024: "3.0G",
	}
	for in, want := range cases {
		if got := formatSize(in); got != want {
			t.Errorf("formatSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFindBinaryMissing(t *testing.T) {
	if got := findBinary([]string{"/nonexistent/mkfs.test"}); got != "" {
		t.Fatalf("findBinary should return empty for missing binaries, got %q", got)
	}
}
