// Package rsyncclient exposes the rsync(1) client role (spec §4.7) as a
// library: construct a Client from rsync-style flags, then Run it over
// any io.ReadWriter connected to a peer speaking the sender or receiver
// side of the wire protocol (a subprocess's stdin/stdout, an in-process
// pipe to rsyncd.Server, or a raw network connection).
package rsyncclient

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"

	"github.com/oferchen/rsync-sub020/internal/bwlimit"
	"github.com/oferchen/rsync-sub020/internal/negotiation"
	"github.com/oferchen/rsync-sub020/internal/receiver"
	"github.com/oferchen/rsync-sub020/internal/rsyncopts"
	"github.com/oferchen/rsync-sub020/internal/rsyncos"
	"github.com/oferchen/rsync-sub020/internal/rsyncstats"
	"github.com/oferchen/rsync-sub020/internal/rsyncwire"
	"github.com/oferchen/rsync-sub020/internal/sender"
)

// Option customizes a Client constructed by New.
type Option func(*Client)

// WithSender makes the client transmit files (the sender role) rather
// than the default of receiving them.
func WithSender() Option {
	return func(c *Client) { c.opts.SetSender() }
}

// WithLogger overrides the default stderr logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client is one configured rsync client, parsed from rsync-style
// command-line flags (e.g. "-av", "--delete").
type Client struct {
	opts   *rsyncopts.Options
	logger *log.Logger
	stats  *rsyncstats.TransferStats
}

// New parses args (rsync(1) flags, without a program name or the
// source/destination positional arguments) into a Client.
func New(args []string, opts ...Option) (*Client, error) {
	osenv := rsyncos.Std()
	pc, err := rsyncopts.ParseArguments(osenv, args)
	if err != nil {
		return nil, err
	}
	c := &Client{
		opts:   pc.Options,
		logger: log.New(osenv.Stderr, "", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Stats returns the transfer statistics from the most recent Run call,
// or nil if Run has not completed successfully yet.
func (c *Client) Stats() *rsyncstats.TransferStats { return c.stats }

// Run negotiates the protocol version over rw and performs one
// transfer: if the Client was built with WithSender, paths must name
// exactly one local source to send; otherwise paths must be a single
// local destination directory to receive into.
func (c *Client) Run(ctx context.Context, rw io.ReadWriter, paths []string) error {
	pacer := bwlimit.PacerForRate(c.opts.BWLimitBytesPerSecond())
	pacedR := &bwlimit.PacedReader{R: rw, P: pacer}
	pacedW := &bwlimit.PacedWriter{W: rw, P: pacer}
	crd := &rsyncwire.CountingReader{R: pacedR}
	cwr := &rsyncwire.CountingWriter{W: pacedW}
	conn := &rsyncwire.Conn{Reader: crd, Writer: cwr}

	version, err := negotiation.NegotiateVersion(conn, negotiation.MaxProtocolVersion)
	if err != nil {
		return err
	}

	seed, err := conn.ReadInt32()
	if err != nil {
		return fmt.Errorf("reading checksum seed: %w", err)
	}

	var compatFlags negotiation.CompatFlags
	if negotiation.UsesBinaryNegotiation(int(version)) {
		compatFlags, err = negotiation.ReadCompatFlags(conn)
		if err != nil {
			return err
		}
	}
	digestKind := negotiation.DefaultDigest(version)
	seedOrder := negotiation.SeedOrderFor(compatFlags)

	mrd := rsyncwire.NewMultiplexReader(pacedR)
	conn.Reader = bufio.NewReaderSize(mrd, 256*1024)

	if c.opts.Sender() {
		if len(paths) != 1 {
			return fmt.Errorf("rsyncclient: sender mode requires exactly one local path, got %q", paths)
		}

		if c.opts.DeleteMode() {
			if err := rsyncwire.WriteVarint(conn.Writer, 0); err != nil {
				return err
			}
		}

		st := &sender.Transfer{
			Logger:              c.logger,
			Opts:                c.opts,
			Conn:                conn,
			Seed:                uint32(seed),
			DigestKind:          digestKind,
			SeedOrder:           seedOrder,
			Version:             version,
			BlockLengthOverride: c.opts.BlockSize(),
		}
		stats, err := st.Do(crd, cwr, ".", paths, &sender.FilterList{})
		if err != nil {
			return err
		}
		c.stats = stats
		return nil
	}

	if len(paths) != 1 {
		return fmt.Errorf("rsyncclient: receiver mode requires exactly one destination path, got %q", paths)
	}

	if err := rsyncwire.WriteVarint(conn.Writer, 0); err != nil {
		return err
	}

	osenv := rsyncos.Std()
	placement, keepPartial := receiver.ResolvePlacement(c.opts.Inplace(), c.opts.KeepPartial(), c.opts.AppendMode())
	rt := &receiver.Transfer{
		Logger: c.logger,
		Opts: &receiver.TransferOpts{
			DryRun: c.opts.DryRun(),
			Server: c.opts.Server(),

			DeleteMode:        c.opts.DeleteMode(),
			PreserveGid:       c.opts.PreserveGid(),
			PreserveUid:       c.opts.PreserveUid(),
			PreserveLinks:     c.opts.PreserveLinks(),
			PreservePerms:     c.opts.PreservePerms(),
			PreserveDevices:   c.opts.PreserveDevices(),
			PreserveSpecials:  c.opts.PreserveSpecials(),
			PreserveTimes:     c.opts.PreserveMTimes(),
			PreserveHardlinks: c.opts.PreserveHardLinks(),
			NumericIDs:        c.opts.NumericIDs(),

			DigestKind: digestKind,
			SeedOrder:  seedOrder,
			Version:    version,

			BlockLengthOverride:  c.opts.BlockSize(),
			Placement:            placement,
			KeepPartialOnFailure: keepPartial,
		},
		Dest: paths[0],
		Env:  receiver.Env{Stdin: osenv.Stdin, Stdout: osenv.Stdout, Stderr: osenv.Stderr},
		Conn: conn,
		Seed: uint32(seed),
	}

	fileList, err := rt.ReceiveFileList()
	if err != nil {
		return err
	}
	stats, err := rt.Do(conn, fileList, false)
	if err != nil {
		return err
	}
	c.stats = stats
	return nil
}
