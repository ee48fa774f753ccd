//go:build linux || darwin

package receiver

import (
	"os"
	"os/user"
	"strconv"

	"github.com/oferchen/rsync-sub020/internal/metadata"
)

var amRoot = os.Getuid() == 0

var inGroup = func() map[int32]bool {
	m := make(map[int32]bool)
	u, err := user.Current()
	if err != nil {
		return m
	}
	gids, err := u.GroupIds()
	if err != nil {
		return m
	}
	for _, gidString := range gids {
		gid64, err := strconv.ParseInt(gidString, 0, 32)
		if err != nil {
			continue
		}
		m[int32(gid64)] = true
	}
	return m
}()

// privilegeClampedOptions narrows metadata.Options.PreserveOwner/
// PreserveGroup to what the running process is actually allowed to
// apply: arbitrary uid changes require root, and a gid change is only
// permitted to a group the process belongs to unless running as root
// (spec §4.8: "ownership changes are clamped to what the process is
// privileged to perform").
func privilegeClampedOptions(f *File, opts metadata.Options) metadata.Options {
	if opts.PreserveOwner && !(amRoot && f.HasUID) {
		opts.PreserveOwner = false
	}
	if opts.PreserveGroup && !(f.HasGID && (amRoot || inGroup[f.GID])) {
		opts.PreserveGroup = false
	}
	return opts
}
