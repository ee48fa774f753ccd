// Package rsyncd implements an rsync daemon/server: it accepts
// connections speaking either the legacy "@RSYNCD:" ASCII daemon
// protocol (versions <= 29) or the post-30 binary handshake, negotiates
// a protocol version and strong digest, and drives the generator/
// sender/receiver trio (internal/receiver, internal/sender) over the
// resulting connection.
package rsyncd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"

	"github.com/oferchen/rsync-sub020/internal/bwlimit"
	"github.com/oferchen/rsync-sub020/internal/checksum"
	"github.com/oferchen/rsync-sub020/internal/negotiation"
	"github.com/oferchen/rsync-sub020/internal/receiver"
	"github.com/oferchen/rsync-sub020/internal/rsyncopts"
	"github.com/oferchen/rsync-sub020/internal/rsyncos"
	"github.com/oferchen/rsync-sub020/internal/rsyncwire"
	"github.com/oferchen/rsync-sub020/internal/sender"
)

// Module describes one named, path-rooted daemon tree (spec §5 "Daemon
// module configuration"), with an ordered ACL list evaluated
// first-match-wins and a writability flag gating receiver mode.
type Module struct {
	Name     string   `toml:"name"`
	Path     string   `toml:"path"`
	ACL      []string `toml:"acl"`
	Writable bool     `toml:"writable"`
}

// Option specifies the server options.
type Option interface {
	applyServer(*Server)
}

type serverOptionFunc func(server *Server)

func (f serverOptionFunc) applyServer(s *Server) {
	f(s)
}

// WithLogger specifies the logger to use for the server.
func WithLogger(logger *log.Logger) Option {
	return serverOptionFunc(func(s *Server) {
		s.logger = logger
	})
}

func WithStderr(stderr io.Writer) Option {
	return serverOptionFunc(func(s *Server) {
		s.stderr = stderr
	})
}

func NewServer(modules []Module, opts ...Option) (*Server, error) {
	for _, mod := range modules {
		if err := validateModule(mod); err != nil {
			return nil, err
		}
	}

	server := &Server{
		modules: modules,
	}

	for _, opt := range opts {
		opt.applyServer(server)
	}

	// Default to os.Stderr if no stderr was specified.
	// Explicitly use io.Discard if you do not want stderr.
	if server.stderr == nil {
		server.stderr = os.Stderr
	}

	if server.logger == nil {
		server.logger = log.New(server.stderr, "", log.LstdFlags)
	}

	return server, nil
}

type Server struct {
	stderr io.Writer
	logger *log.Logger

	modules []Module
}

func (s *Server) getModule(requestedModule string) (Module, error) {
	for _, mod := range s.modules {
		if mod.Name == requestedModule {
			return mod, nil
		}
	}

	return Module{}, fmt.Errorf("no such module: %s", requestedModule)
}

func (s *Server) formatModuleList() string {
	if len(s.modules) == 0 {
		return ""
	}
	var list strings.Builder
	for _, mod := range s.modules {
		comment := mod.Name // for now
		fmt.Fprintf(&list, "%s\t%s\n",
			mod.Name,
			comment)
	}
	return list.String()
}

func checkACL(acls []string, remoteAddr net.Addr) error {
	if len(acls) == 0 {
		return nil
	}
	host, _, err := net.SplitHostPort(remoteAddr.String())
	if err != nil {
		return fmt.Errorf("BUG: invalid remote address %q", remoteAddr.String())
	}
	remoteIP := net.ParseIP(host)
	if remoteIP == nil {
		return fmt.Errorf("BUG: invalid remote host %q", host)
	}
	for _, acl := range acls {
		i := strings.Index(acl, " ")
		if i < 0 {
			return fmt.Errorf("invalid acl: %q (no space found)", acl)
		}
		action, who := acl[:i], acl[i+len(" "):]
		if action != "allow" && action != "deny" {
			return fmt.Errorf("invalid acl: %q (syntax: allow|deny <all|ipnet>)", acl)
		}
		if who == "all" {
			// The all keyword matches any remote IP address
		} else {
			_, ipnet, err := net.ParseCIDR(who)
			if err != nil {
				return fmt.Errorf("invalid acl: %q (syntax: allow|deny <all|ipnet>)", acl)
			}
			if !ipnet.Contains(remoteIP) {
				continue
			}
		}
		switch action {
		case "allow":
			return nil
		case "deny":
			return fmt.Errorf("access denied (acl %q)", acl)
		default:
			return fmt.Errorf("invalid acl: %q (syntax: allow|deny <all|ipnet>)", acl)
		}
	}
	return nil
}

// HandleDaemonConn speaks the legacy "@RSYNCD:" greeting/module/flags
// exchange (spec §4.3 "Legacy ASCII negotiation") ahead of handing the
// connection to HandleConn for the shared version/seed/compat-flags
// handshake and transfer.
func (s *Server) HandleDaemonConn(ctx context.Context, env receiver.Env, conn io.ReadWriter, remoteAddr net.Addr) (err error) {
	_ = ctx

	const terminationCommand = "@RSYNCD: OK\n"
	crd, cwr := rsyncwire.CounterPair(conn, conn)
	rd := bufio.NewReader(crd)

	fmt.Fprintf(cwr, "@RSYNCD: %d\n", negotiation.MaxProtocolVersion)

	clientGreeting, err := rd.ReadString('\n')
	if err != nil {
		return err
	}
	if !strings.HasPrefix(clientGreeting, "@RSYNCD: ") {
		return fmt.Errorf("invalid client greeting: got %q", clientGreeting)
	}

	requestedModule, err := rd.ReadString('\n')
	if err != nil {
		return err
	}
	requestedModule = strings.TrimSpace(requestedModule)
	if requestedModule == "" || requestedModule == "#list" {
		s.logger.Printf("client %v requested rsync module listing", remoteAddr)
		io.WriteString(cwr, s.formatModuleList())
		io.WriteString(cwr, "@RSYNCD: EXIT\n")
		return nil
	}
	s.logger.Printf("client %v requested rsync module %q", remoteAddr, requestedModule)
	module, err := s.getModule(requestedModule)
	if err != nil {
		fmt.Fprintf(cwr, "@ERROR: Unknown module %q\n", requestedModule)
		return err
	}

	if err := checkACL(module.ACL, remoteAddr); err != nil {
		fmt.Fprintf(cwr, "@ERROR: %v\n", err)
		return err
	}

	io.WriteString(cwr, terminationCommand)

	var flags []string
	for {
		flag, err := rd.ReadString('\n')
		if err != nil {
			return err
		}
		flag = strings.TrimSpace(flag)
		s.logger.Printf("client sent: %q", flag)
		if flag == "" {
			break
		}
		flags = append(flags, flag)
	}

	s.logger.Printf("flags: %+v", flags)
	pc, err := rsyncopts.ParseArguments(rsyncos.Std(), flags)
	if err != nil {
		err = fmt.Errorf("parsing server args: %v", err)

		c := &rsyncwire.Conn{Reader: rd, Writer: cwr}
		const errorSeed = 0xee
		if err := c.WriteInt32(errorSeed); err != nil {
			return err
		}
		mpx := rsyncwire.NewMultiplexWriter(c.Writer)
		mpx.Send(rsyncwire.TagError, fmt.Appendf(nil, "rsyncd [sender]: %v\n", err))
		return err
	}
	opts := pc.Options
	remaining := pc.RemainingArgs
	s.logger.Printf("remaining: %q", remaining)
	if len(remaining) < 2 {
		return fmt.Errorf("invalid args: at least one directory required")
	}
	if got, want := remaining[0], "."; got != want {
		return fmt.Errorf("protocol error: got %q, expected %q", got, want)
	}
	paths := remaining[1:]
	s.logger.Printf("paths: %q", paths)

	// Strip the module_name/ prefix out of the paths,
	// see rsync/io.c:read_args, glob_expand_module().
	for idx, path := range paths {
		trimmed := strings.TrimPrefix(path, module.Name)
		if trimmed == "" {
			trimmed = "."
		}
		paths[idx] = trimmed
	}

	s.logger.Printf("trimmed paths: %q", paths)

	return s.HandleConn(&module, &Conn{crd, cwr, rd}, paths, opts, false)
}

type Conn struct {
	crd *rsyncwire.CountingReader
	cwr *rsyncwire.CountingWriter
	rd  *bufio.Reader
}

func (s *Server) NewConnection(r io.Reader, w io.Writer) *Conn {
	crd, cwr := rsyncwire.CounterPair(r, w)
	rd := bufio.NewReader(crd)
	return &Conn{
		crd: crd,
		cwr: cwr,
		rd:  rd,
	}
}

// HandleConn runs the shared post-greeting handshake (version, session
// checksum seed, compat flags, multiplexing) and then dispatches to the
// sender or receiver role (spec §4.7), equivalent to
// rsync/main.c:start_server.
func (s *Server) HandleConn(module *Module, conn *Conn, paths []string, opts *rsyncopts.Options, negotiate bool) (err error) {
	rd := conn.rd
	crd := conn.crd
	cwr := conn.cwr

	pacer := bwlimit.PacerForRate(opts.BWLimitBytesPerSecond())
	crd.R = &bwlimit.PacedReader{R: crd.R, P: pacer}
	cwr.W = &bwlimit.PacedWriter{W: cwr.W, P: pacer}

	c := &rsyncwire.Conn{
		Reader: rd,
		Writer: cwr,
	}

	version := int32(negotiation.MaxProtocolVersion)
	if negotiate {
		version, err = negotiation.NegotiateVersion(c, negotiation.MaxProtocolVersion)
		if err != nil {
			return err
		}
	}
	if opts.Verbose() {
		s.logger.Printf("negotiated protocol version: %d", version)
	}

	sessionChecksumSeed := int32(os.Getpid())
	if err := c.WriteInt32(sessionChecksumSeed); err != nil {
		return err
	}

	var compatFlags negotiation.CompatFlags
	if negotiation.UsesBinaryNegotiation(int(version)) {
		compatFlags = negotiation.CompatVarintFlistFlags | negotiation.CompatChecksumSeedFix
		if err := negotiation.WriteCompatFlags(c, compatFlags); err != nil {
			return err
		}
	}
	digestKind := negotiation.DefaultDigest(version)
	seedOrder := negotiation.SeedOrderFor(compatFlags)

	// Switch to multiplexing protocol, but only for server-side transmissions.
	// Transmissions received from the client are not multiplexed.
	mpx := rsyncwire.NewMultiplexWriter(c.Writer)
	c.Writer = mpx

	if opts.Sender() {
		defer func() {
			if err != nil {
				mpx.Send(rsyncwire.TagError, fmt.Appendf(nil, "rsyncd [sender]: %v\n", err))
			}
		}()
		return s.handleConnSender(module, crd, cwr, paths, opts, c, sessionChecksumSeed, version, digestKind, seedOrder)
	}

	defer func() {
		if err != nil {
			mpx.Send(rsyncwire.TagError, fmt.Appendf(nil, "rsyncd [receiver]: %v\n", err))
		}
	}()
	return s.handleConnReceiver(module, crd, cwr, paths, opts, c, sessionChecksumSeed, version, digestKind, seedOrder)
}

// handleConnReceiver is equivalent to rsync/main.c:do_server_recv
func (s *Server) handleConnReceiver(module *Module, crd *rsyncwire.CountingReader, cwr *rsyncwire.CountingWriter, paths []string, opts *rsyncopts.Options, c *rsyncwire.Conn, sessionChecksumSeed int32, version int32, digestKind checksum.DigestKind, seedOrder checksum.SeedOrder) (err error) {
	if module == nil {
		if len(paths) != 1 {
			return fmt.Errorf("precisely one destination path required, got %q", paths)
		}
		module = &Module{
			Name:     "implicit",
			Path:     paths[0],
			Writable: true,
		}
	}
	if opts.Verbose() {
		s.logger.Printf("handleConnReceiver(module=%+v)", module)
	}

	if !module.Writable {
		return fmt.Errorf("ERROR: module is read only")
	}

	if opts.PreserveHardLinks() {
		return fmt.Errorf("support for hard links not yet implemented")
	}

	placement, keepPartial := receiver.ResolvePlacement(opts.Inplace(), opts.KeepPartial(), opts.AppendMode())

	rt := &receiver.Transfer{
		Logger: s.logger,
		Opts: &receiver.TransferOpts{
			DryRun: opts.DryRun(),
			Server: opts.Server(),

			DeleteMode:      opts.DeleteMode(),
			PreserveGid:     opts.PreserveGid(),
			PreserveUid:     opts.PreserveUid(),
			PreserveLinks:   opts.PreserveLinks(),
			PreservePerms:   opts.PreservePerms(),
			PreserveDevices: opts.PreserveDevices(),
			PreserveSpecials: opts.PreserveSpecials(),
			PreserveTimes:    opts.PreserveMTimes(),

			DigestKind: digestKind,
			SeedOrder:  seedOrder,
			Version:    version,

			BlockLengthOverride:  opts.BlockSize(),
			Placement:            placement,
			KeepPartialOnFailure: keepPartial,
		},
		Dest: module.Path,
		Env: receiver.Env{
			Stderr: s.stderr,
		},
		Conn: c,
		Seed: uint32(sessionChecksumSeed),
	}

	if opts.DeleteMode() {
		// receive the exclusion list (openrsync's is always empty)
		exclusionList, err := sender.RecvFilterList(c)
		if err != nil {
			return err
		}
		s.logger.Printf("exclusion list read (entries: %d)", len(exclusionList.Filters))
	}

	if opts.Verbose() {
		s.logger.Printf("receiving file list")
	}
	fileList, err := rt.ReceiveFileList()
	if err != nil {
		return err
	}
	if opts.Verbose() {
		s.logger.Printf("received %d names", len(fileList))
	}
	stats, err := rt.Do(c, fileList, true)
	if err != nil {
		return err
	}
	if opts.Verbose() {
		s.logger.Printf("stats: %+v", stats)
	}
	return nil
}

// handleConnSender is equivalent to rsync/main.c:do_server_sender
func (s *Server) handleConnSender(module *Module, crd *rsyncwire.CountingReader, cwr *rsyncwire.CountingWriter, paths []string, opts *rsyncopts.Options, c *rsyncwire.Conn, sessionChecksumSeed int32, version int32, digestKind checksum.DigestKind, seedOrder checksum.SeedOrder) (err error) {
	if module == nil {
		module = &Module{
			Name: "implicit",
			Path: "/",
		}
	}

	st := &sender.Transfer{
		Logger:              s.logger,
		Opts:                opts,
		Conn:                c,
		Seed:                uint32(sessionChecksumSeed),
		DigestKind:          digestKind,
		SeedOrder:           seedOrder,
		Version:             version,
		BlockLengthOverride: opts.BlockSize(),
	}
	// receive the exclusion list (openrsync's is always empty)
	exclusionList, err := sender.RecvFilterList(st.Conn)
	if err != nil {
		return err
	}
	st.Logger.Printf("exclusion list read (entries: %d)", len(exclusionList.Filters))

	stats, err := st.Do(crd, cwr, module.Path, paths, exclusionList)
	if err != nil {
		return err
	}

	s.logger.Printf("handleConnSender done. stats: %+v", stats)

	return nil
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	env := receiver.Env{
		Stdin:  nil,
		Stdout: nil,
		Stderr: s.stderr,
	}

	go func() {
		<-ctx.Done()
		ln.Close() // unblocks Accept()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil // ignore expected 'use of closed network connection' error on context cancel
			default:
				return err
			}
		}
		remoteAddr := conn.RemoteAddr()
		s.logger.Printf("remote connection from %s", remoteAddr)
		go func() {
			defer conn.Close()
			if err := s.HandleDaemonConn(ctx, env, conn, remoteAddr); err != nil {
				s.logger.Printf("[%s] handle: %v", remoteAddr, err)
			}
		}()
	}
}

func validateModule(mod Module) error {
	if mod.Name == "" {
		return errors.New("module has no name")
	}
	if mod.Path == "" {
		return fmt.Errorf("module %q has empty path", mod.Name)
	}

	return nil
}
