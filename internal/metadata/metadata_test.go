package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oferchen/rsync-sub020/internal/flist"
)

func TestApplyPermsAndTimes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
		t.Fatal(err)
	}

	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	e := flist.Entry{
		Path:      "f",
		Type:      flist.Regular,
		Mode:      0o640,
		MtimeSec:  mtime.Unix(),
		MtimeNsec: 0,
	}

	opts := Options{PreservePerms: true, PreserveTimes: true}
	if err := Apply(path, e, opts); err != nil {
		t.Fatal(err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o640 {
		t.Errorf("got mode %o, want 0640", fi.Mode().Perm())
	}
	if !fi.ModTime().Equal(mtime) {
		t.Errorf("got mtime %v, want %v", fi.ModTime(), mtime)
	}
}

func TestApplyChmodDSLOverridesMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("data"), 0o600); err != nil {
		t.Fatal(err)
	}

	e := flist.Entry{Path: "f", Type: flist.Regular, Mode: 0o644}
	opts := Options{
		PreservePerms: true,
		ChmodDSL: func(mode uint32, isDir bool) uint32 {
			return mode &^ 0o022
		},
	}
	if err := Apply(path, e, opts); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o644&^0o022 {
		t.Errorf("got mode %o, want %o", fi.Mode().Perm(), 0o644&^0o022)
	}
}

func TestRequiresPrivilegeForDevicesAndSetid(t *testing.T) {
	if !requiresPrivilege(flist.Entry{Type: flist.CharDevice}) {
		t.Error("char device should require privilege")
	}
	if !requiresPrivilege(flist.Entry{Type: flist.Regular, Mode: 0o4755}) {
		t.Error("setuid regular file should require privilege")
	}
	if requiresPrivilege(flist.Entry{Type: flist.Regular, Mode: 0o644}) {
		t.Error("plain regular file should not require privilege")
	}
}
