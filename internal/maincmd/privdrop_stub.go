//go:build !linux || nonamespacing

package maincmd

import "github.com/oferchen/rsync-sub020/internal/rsyncos"

// dropPrivileges is a no-op on platforms without the Linux-specific
// syscall.Set{u,g}id privilege-drop path, or when built with
// nonamespacing.
func dropPrivileges(osenv *rsyncos.Env) error { return nil }
