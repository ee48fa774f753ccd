// Package sender implements the sender role (spec §4.7): it walks a
// source tree, transmits the file list, then answers each basis
// signature the peer sends with a delta instruction stream computed by
// internal/signature's search/index.
package sender

import (
	"log"

	"github.com/oferchen/rsync-sub020/internal/checksum"
	"github.com/oferchen/rsync-sub020/internal/rsyncwire"
)

// Options is the subset of CLI/daemon options that affect sender
// behavior (spec §6).
type Options interface {
	Verbose() bool
	DryRun() bool
	Server() bool
	PreserveLinks() bool
	PreserveDevices() bool
	PreserveSpecials() bool
	Recurse() bool
}

// Transfer holds the state of one sender-role session.
type Transfer struct {
	Logger *log.Logger
	Opts   Options
	Conn   *rsyncwire.Conn
	Seed   uint32

	DigestKind          checksum.DigestKind
	SeedOrder           checksum.SeedOrder
	Version             int32
	BlockLengthOverride int64
}
