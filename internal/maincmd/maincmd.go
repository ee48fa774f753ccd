// Package maincmd implements the rsync(1)/rsyncd(8) process entry
// points (spec §6): client mode, remote-shell server mode (both
// "--server" and "--server --daemon"), and the standalone TCP daemon.
package maincmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/oferchen/rsync-sub020/internal/receiver"
	"github.com/oferchen/rsync-sub020/internal/restrict"
	"github.com/oferchen/rsync-sub020/internal/rsyncdconfig"
	"github.com/oferchen/rsync-sub020/internal/rsyncopts"
	"github.com/oferchen/rsync-sub020/internal/rsyncos"
	"github.com/oferchen/rsync-sub020/internal/rsyncstats"
	"github.com/oferchen/rsync-sub020/rsyncd"
)

// readWriter adapts a separate reader and writer (e.g. a process's
// stdin/stdout, or two halves of a remote-shell pipe) to io.ReadWriter.
type readWriter struct {
	r io.Reader
	w io.Writer
}

func (rw *readWriter) Read(p []byte) (int, error)  { return rw.r.Read(p) }
func (rw *readWriter) Write(p []byte) (int, error) { return rw.w.Write(p) }

// stdioAddr stands in for net.Addr on connections that are not sockets
// (remote-shell pipes), purely for log messages and ACL evaluation
// (an empty ACL always passes, see rsyncd.checkACL).
type stdioAddr string

func (a stdioAddr) Network() string { return "pipe" }
func (a stdioAddr) String() string  { return string(a) }

// Main is the single entry point cmd/gokr-rsync dispatches to. It
// mirrors rsync/main.c's split between start_server (remote-shell
// modes, recognized by --server) and the client/daemon paths.
func Main(ctx context.Context, osenv *rsyncos.Env, args []string) (*rsyncstats.TransferStats, error) {
	pc, err := rsyncopts.ParseArguments(osenv, args[1:])
	if err != nil {
		return nil, err
	}
	opts := pc.Options
	remaining := pc.RemainingArgs

	if !osenv.DontRestrict {
		osenv.DontRestrict = opts.GokrazyClient.DontRestrict == 1
	}

	// "--server --daemon": a remote shell (ssh) invoked us as the daemon
	// side of a "host::module" or "rsync://host/module" transfer.
	if opts.Daemon() && opts.Server() {
		srv, err := rsyncd.NewServer(nil, rsyncd.WithStderr(osenv.Stderr))
		if err != nil {
			return nil, err
		}
		conn := &readWriter{r: osenv.Stdin, w: osenv.Stdout}
		env := receiver.Env{Stdin: osenv.Stdin, Stdout: osenv.Stdout, Stderr: osenv.Stderr}
		return nil, srv.HandleDaemonConn(ctx, env, conn, stdioAddr("<remote-shell-daemon>"))
	}

	// "--server" alone: a remote shell invoked us directly as sender or
	// receiver, talking the core wire protocol without the daemon
	// greeting (rsync/main.c:start_server).
	if opts.Server() {
		srv, err := rsyncd.NewServer(nil, rsyncd.WithStderr(osenv.Stderr))
		if err != nil {
			return nil, err
		}
		if len(remaining) < 2 {
			return nil, fmt.Errorf("invalid args: at least one directory required")
		}
		if got, want := remaining[0], "."; got != want {
			return nil, fmt.Errorf("protocol error: got %q, expected %q", got, want)
		}
		paths := remaining[1:]
		if opts.Verbose() {
			osenv.Logf("paths: %q", paths)
		}
		var roDirs, rwDirs []string
		if opts.Sender() {
			roDirs = append(roDirs, paths...)
		} else {
			for _, path := range paths {
				if err := os.MkdirAll(path, 0o755); err != nil {
					return nil, err
				}
			}
			rwDirs = append(rwDirs, paths...)
		}
		if osenv.Restrict() {
			if err := restrict.MaybeFileSystem(roDirs, rwDirs); err != nil {
				return nil, err
			}
		}
		conn := srv.NewConnection(osenv.Stdin, osenv.Stdout)
		return nil, srv.HandleConn(nil, conn, paths, opts, true)
	}

	if !opts.Daemon() {
		return clientMain(ctx, osenv, opts, remaining)
	}

	// "--daemon" alone: run the standalone TCP rsync daemon.
	return runDaemon(ctx, osenv, opts)
}

func runDaemon(ctx context.Context, osenv *rsyncos.Env, opts *rsyncopts.Options) (*rsyncstats.TransferStats, error) {
	cfgPath := opts.GokrazyDaemon.Config
	if cfgPath == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			cfgPath = filepath.Join(dir, "gokr-rsyncd.toml")
		}
	}

	var cfg *rsyncdconfig.File
	if cfgPath != "" {
		loaded, err := rsyncdconfig.Load(cfgPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			cfg = loaded
			osenv.Logf("config file %s loaded", cfgPath)
		} else {
			osenv.Logf("config file not found, relying on flags")
		}
	}
	if cfg == nil {
		cfg = &rsyncdconfig.File{}
	}

	if moduleMap := opts.GokrazyDaemon.ModuleMap; moduleMap != "" {
		name, path, ok := strings.Cut(moduleMap, "=")
		if !ok {
			return nil, fmt.Errorf("malformed -gokr.modulemap parameter %q, expected <modulename>=<path>", moduleMap)
		}
		cfg.Modules = append(cfg.Modules, rsyncd.Module{Name: name, Path: path})
	}

	listenAddr := opts.GokrazyDaemon.Listen
	if listenAddr == "" {
		listenAddr = cfg.Listen
	}
	if listenAddr == "" {
		return nil, fmt.Errorf("neither -gokr.listen nor a config [listen] address specified")
	}

	osenv.Logf("%d rsync modules configured", len(cfg.Modules))
	for _, mod := range cfg.Modules {
		osenv.Logf("rsync module %q with path %s configured", mod.Name, mod.Path)
	}

	srv, err := rsyncd.NewServer(cfg.Modules, rsyncd.WithStderr(osenv.Stderr))
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}
	if err := dropPrivileges(osenv); err != nil {
		return nil, err
	}
	osenv.Logf("rsync daemon listening on rsync://%s", ln.Addr())
	return nil, srv.Serve(ctx, ln)
}
