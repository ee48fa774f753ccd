package maincmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"github.com/oferchen/rsync-sub020/internal/bwlimit"
	"github.com/oferchen/rsync-sub020/internal/negotiation"
	"github.com/oferchen/rsync-sub020/internal/receiver"
	"github.com/oferchen/rsync-sub020/internal/rsyncopts"
	"github.com/oferchen/rsync-sub020/internal/rsyncos"
	"github.com/oferchen/rsync-sub020/internal/rsyncstats"
	"github.com/oferchen/rsync-sub020/internal/rsyncwire"
	"github.com/oferchen/rsync-sub020/internal/sender"
)

// clientMain dispatches SRC/DEST arguments already parsed by
// rsyncopts.ParseArguments (rsync/main.c:main, the non-daemon branch).
func clientMain(ctx context.Context, osenv *rsyncos.Env, opts *rsyncopts.Options, remaining []string) (*rsyncstats.TransferStats, error) {
	if len(remaining) == 0 {
		fmt.Fprintln(osenv.Stderr, opts.Help())
		return nil, fmt.Errorf("rsync error: syntax or usage error")
	}
	if len(remaining) == 1 {
		// A single SRC is passed on with an empty DEST; there is no
		// separate list-only path.
		return rsyncMain(ctx, osenv, opts, remaining, "")
	}
	dest := remaining[len(remaining)-1]
	sources := remaining[:len(remaining)-1]
	return rsyncMain(ctx, osenv, opts, sources, dest)
}

// rsyncMain is rsync/main.c:start_client: it classifies SRC/DEST as
// local paths or host specs and picks the transport (local copy,
// remote shell, or daemon socket) accordingly.
func rsyncMain(ctx context.Context, osenv *rsyncos.Env, opts *rsyncopts.Options, sources []string, dest string) (*rsyncstats.TransferStats, error) {
	src := sources[0]

	daemonConnection := 0
	host, path, port, err := checkForHostspec(src)
	if err != nil {
		// Source is local; check the destination instead.
		opts.SetSender()
		host, path, port, err = checkForHostspec(dest)
		if path == "" {
			host, port, path = "", 0, dest
			opts.SetLocalServer()
		} else if port != 0 {
			if opts.ShellCommand() != "" {
				daemonConnection = 1
			} else {
				daemonConnection = -1
			}
		}
	} else if port != 0 {
		if opts.ShellCommand() != "" {
			daemonConnection = 1
		} else {
			daemonConnection = -1
		}
	}

	other := dest
	if opts.Sender() {
		other = src
	}

	if daemonConnection < 0 {
		return socketClient(ctx, osenv, opts, host, path, port, other)
	}

	machine := host
	user := ""
	if idx := strings.IndexByte(machine, '@'); idx >= 0 {
		user = machine[:idx]
		machine = machine[idx+1:]
	}
	rc, wc, err := doCmd(osenv, opts, machine, user, path, daemonConnection)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	defer wc.Close()
	conn := &readWriter{r: rc, w: wc}
	return clientRun(osenv, opts, conn, []string{other}, true)
}

// doCmd is rsync/main.c:do_cmd: it spawns either a local child process
// (when both SRC and DEST are local) or a remote shell command that
// execs the remote rsync binary in --server mode.
func doCmd(osenv *rsyncos.Env, opts *rsyncopts.Options, machine, user, path string, daemonConnection int) (io.ReadCloser, io.WriteCloser, error) {
	var args []string
	if !opts.LocalServer() {
		cmd := opts.ShellCommand()
		if cmd == "" {
			cmd = "ssh"
			if e := os.Getenv("RSYNC_RSH"); e != "" {
				cmd = e
			}
		}
		var err error
		args, err = shlex.Split(cmd)
		if err != nil {
			return nil, nil, err
		}
		if user != "" && daemonConnection == 0 {
			args = append(args, "-l", user)
		}
		args = append(args, machine, "rsync")
	} else {
		args = append(args, os.Args[0])
	}

	if daemonConnection > 0 {
		args = append(args, "--server", "--daemon")
	} else {
		args = append(args, serverOptions(opts)...)
	}
	args = append(args, ".")
	if daemonConnection == 0 {
		args = append(args, path)
	}

	if opts.Verbose() {
		osenv.Logf("spawning remote command: %q", args)
	}

	cmd := exec.Command(args[0], args[1:]...)
	wc, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, err
	}
	rc, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	cmd.Stderr = osenv.Stderr
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			osenv.Logf("remote shell exited: %v", err)
		}
	}()
	return rc, wc, nil
}

// clientRun drives one transfer over an established connection,
// negotiating protocol version/compat flags when negotiate is true
// (remote-shell transport) or assuming the version already fixed by
// the legacy ASCII exchange (daemon transport; mirrors
// rsyncd.HandleConn's own negotiate=false default of
// negotiation.MaxProtocolVersion).
func clientRun(osenv *rsyncos.Env, opts *rsyncopts.Options, conn io.ReadWriter, paths []string, negotiate bool) (*rsyncstats.TransferStats, error) {
	pacer := bwlimit.PacerForRate(opts.BWLimitBytesPerSecond())
	pacedR := &bwlimit.PacedReader{R: conn, P: pacer}
	pacedW := &bwlimit.PacedWriter{W: conn, P: pacer}
	crd := &rsyncwire.CountingReader{R: pacedR}
	cwr := &rsyncwire.CountingWriter{W: pacedW}
	c := &rsyncwire.Conn{Reader: crd, Writer: cwr}

	version := int32(negotiation.MaxProtocolVersion)
	if negotiate {
		var err error
		version, err = negotiation.NegotiateVersion(c, negotiation.MaxProtocolVersion)
		if err != nil {
			return nil, err
		}
	}

	seed, err := c.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("reading checksum seed: %w", err)
	}

	var compatFlags negotiation.CompatFlags
	if negotiation.UsesBinaryNegotiation(int(version)) {
		compatFlags, err = negotiation.ReadCompatFlags(c)
		if err != nil {
			return nil, err
		}
	}
	digestKind := negotiation.DefaultDigest(version)
	seedOrder := negotiation.SeedOrderFor(compatFlags)

	mrd := rsyncwire.NewMultiplexReader(pacedR)
	rd := bufio.NewReaderSize(mrd, 256*1024)
	c.Reader = rd

	logger := log.New(osenv.Stderr, "", log.LstdFlags)

	if opts.Sender() {
		st := &sender.Transfer{
			Logger:              logger,
			Opts:                opts,
			Conn:                c,
			Seed:                uint32(seed),
			DigestKind:          digestKind,
			SeedOrder:           seedOrder,
			Version:             version,
			BlockLengthOverride: opts.BlockSize(),
		}
		if len(paths) != 1 {
			return nil, fmt.Errorf("BUG: expected exactly one path, got %q", paths)
		}
		other := filepath.Clean(paths[0])
		root := filepath.Dir(other)
		rel := filepath.Base(other)

		// The peer's handleConnReceiver only reads a filter list when
		// --delete is active; write the empty-list terminator to match.
		if opts.DeleteMode() {
			if err := rsyncwire.WriteVarint(c.Writer, 0); err != nil {
				return nil, err
			}
		}
		return st.Do(crd, cwr, root, []string{rel}, &sender.FilterList{})
	}

	if len(paths) != 1 {
		return nil, fmt.Errorf("BUG: expected exactly one path, got %q", paths)
	}

	placement, keepPartial := receiver.ResolvePlacement(opts.Inplace(), opts.KeepPartial(), opts.AppendMode())

	rt := &receiver.Transfer{
		Logger: logger,
		Opts: &receiver.TransferOpts{
			DryRun: opts.DryRun(),
			Server: opts.Server(),

			DeleteMode:        opts.DeleteMode(),
			PreserveGid:       opts.PreserveGid(),
			PreserveUid:       opts.PreserveUid(),
			PreserveLinks:     opts.PreserveLinks(),
			PreservePerms:     opts.PreservePerms(),
			PreserveDevices:   opts.PreserveDevices(),
			PreserveSpecials:  opts.PreserveSpecials(),
			PreserveTimes:     opts.PreserveMTimes(),
			PreserveHardlinks: opts.PreserveHardLinks(),
			NumericIDs:        opts.NumericIDs(),

			DigestKind: digestKind,
			SeedOrder:  seedOrder,
			Version:    version,

			BlockLengthOverride:  opts.BlockSize(),
			Placement:            placement,
			KeepPartialOnFailure: keepPartial,
		},
		Dest: paths[0],
		Env:  receiver.Env{Stdin: osenv.Stdin, Stdout: osenv.Stdout, Stderr: osenv.Stderr},
		Conn: c,
		Seed: uint32(seed),
	}

	// The peer's handleConnSender always reads a filter list; write the
	// empty-list terminator unconditionally to keep the wire in sync.
	if err := rsyncwire.WriteVarint(c.Writer, 0); err != nil {
		return nil, err
	}

	fileList, err := rt.ReceiveFileList()
	if err != nil {
		return nil, err
	}
	if opts.Verbose() {
		osenv.Logf("received %d names", len(fileList))
	}

	return rt.Do(c, fileList, false)
}
