package maincmd

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/oferchen/rsync-sub020/internal/rsyncopts"
	"github.com/oferchen/rsync-sub020/internal/rsyncos"
	"github.com/oferchen/rsync-sub020/internal/rsyncstats"
)

// serverOptions reconstructs the flag list rsync(1) forwards to the
// remote rsync process, mirroring rsync/main.c:server_options for the
// subset of flags this implementation understands (spec §6).
func serverOptions(opts *rsyncopts.Options) []string {
	args := []string{"--server"}
	if !opts.Sender() {
		args = append(args, "--sender")
	}
	if opts.Verbose() {
		args = append(args, "-v")
	}
	if opts.DryRun() {
		args = append(args, "-n")
	}
	if opts.Recurse() {
		args = append(args, "-r")
	}
	if opts.PreserveLinks() {
		args = append(args, "-l")
	}
	if opts.PreservePerms() {
		args = append(args, "-p")
	}
	if opts.PreserveMTimes() {
		args = append(args, "-t")
	}
	if opts.PreserveUid() {
		args = append(args, "-o")
	}
	if opts.PreserveGid() {
		args = append(args, "-g")
	}
	if opts.PreserveDevices() {
		args = append(args, "--devices")
	}
	if opts.PreserveSpecials() {
		args = append(args, "--specials")
	}
	if opts.PreserveHardLinks() {
		args = append(args, "-H")
	}
	if opts.DeleteMode() {
		args = append(args, "--delete")
	}
	if opts.AlwaysChecksum() {
		args = append(args, "-c")
	}
	if opts.NumericIDs() {
		args = append(args, "--numeric-ids")
	}
	return args
}

// socketClient implements rsync/main.c:start_socket_client: it dials
// the daemon, performs the legacy "@RSYNCD:" greeting/module/auth
// exchange (spec §4.2 "Legacy ASCII negotiation"), sends the server
// option list, and hands the now-raw connection to clientRun.
func socketClient(ctx context.Context, osenv *rsyncos.Env, opts *rsyncopts.Options, host, path string, port int, localPath string) (*rsyncstats.TransferStats, error) {
	if port == 0 {
		port = defaultRsyncdPort
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("connecting to rsync daemon at %s: %w", host, err)
	}
	defer conn.Close()

	rd := bufio.NewReader(conn)
	greeting, err := rd.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("reading daemon greeting: %w", err)
	}
	if !strings.HasPrefix(greeting, "@RSYNCD: ") {
		return nil, fmt.Errorf("unexpected daemon greeting: %q", greeting)
	}
	if opts.Verbose() {
		osenv.Logf("daemon greeting: %s", strings.TrimSpace(greeting))
	}
	if _, err := fmt.Fprintf(conn, "@RSYNCD: 31.0\n"); err != nil {
		return nil, err
	}

	module, rest := moduleAndPath(path)
	if _, err := fmt.Fprintf(conn, "%s\n", module); err != nil {
		return nil, err
	}

	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("reading daemon response: %w", err)
		}
		trimmed := strings.TrimSuffix(line, "\n")
		switch {
		case strings.HasPrefix(trimmed, "@ERROR"):
			return nil, fmt.Errorf("daemon: %s", trimmed)
		case strings.HasPrefix(trimmed, "@RSYNCD: AUTHREQD "):
			challenge := strings.TrimPrefix(trimmed, "@RSYNCD: AUTHREQD ")
			user, resp, err := authResponse(osenv, opts, challenge)
			if err != nil {
				return nil, err
			}
			if _, err := fmt.Fprintf(conn, "%s %s\n", user, resp); err != nil {
				return nil, err
			}
		case trimmed == "@RSYNCD: OK":
			goto negotiated
		case trimmed == "@RSYNCD: EXIT":
			return nil, nil
		default:
			if opts.Verbose() {
				osenv.Logf("daemon: %s", trimmed)
			}
		}
	}
negotiated:

	args := serverOptions(opts)
	args = append(args, ".", rest)
	for _, a := range args {
		if _, err := fmt.Fprintf(conn, "%s\n", a); err != nil {
			return nil, err
		}
	}
	if _, err := fmt.Fprint(conn, "\n"); err != nil {
		return nil, err
	}

	stats, err := clientRun(osenv, opts, conn, []string{localPath}, false)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// authResponse computes the MD5(password|challenge) daemon
// authentication response rsync's auth.c:auth_client uses, reading the
// password from --password-file or, failing that, an interactive
// terminal prompt.
func authResponse(osenv *rsyncos.Env, opts *rsyncopts.Options, challenge string) (user, response string, err error) {
	user = os.Getenv("USER")
	var password string
	if pf := opts.PasswordFile(); pf != "" {
		data, err := os.ReadFile(pf)
		if err != nil {
			return "", "", fmt.Errorf("reading --password-file: %w", err)
		}
		password = strings.TrimRight(string(data), "\r\n")
	} else if f, ok := osenv.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(osenv.Stderr, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(osenv.Stderr)
		if err != nil {
			return "", "", fmt.Errorf("reading password: %w", err)
		}
		password = string(b)
	} else {
		return "", "", fmt.Errorf("daemon requires authentication and no --password-file was given")
	}

	h := md5.New()
	h.Write([]byte(password))
	h.Write([]byte(challenge))
	return user, base64.RawStdEncoding.EncodeToString(h.Sum(nil)), nil
}
