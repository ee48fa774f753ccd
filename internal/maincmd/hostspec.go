package maincmd

import (
	"fmt"
	"strconv"
	"strings"
)

// defaultRsyncdPort is the well-known TCP port the rsync daemon
// protocol listens on when a "host::module" or "rsync://host/module"
// spec doesn't name one explicitly.
const defaultRsyncdPort = 873

// checkForHostspec parses one of rsync(1)'s source/dest argument
// forms (spec §6 "Hostspec syntax"):
//
//	rsync://[user@]host[:port]/module[/path]
//	host::module[/path]
//	host:path                 (remote shell, not a daemon)
//
// A bare local path is reported as an error so the caller can fall
// back to treating it as a local argument, mirroring rsync/main.c's
// check_for_hostspec.
func checkForHostspec(arg string) (host, path string, port int, err error) {
	if rest, ok := strings.CutPrefix(arg, "rsync://"); ok {
		host, path, port, err = parseRsyncURL(rest)
		return host, path, port, err
	}
	if idx := strings.Index(arg, "::"); idx >= 0 {
		host = arg[:idx]
		path = arg[idx+2:]
		port = defaultRsyncdPort
		if h, p, ok := splitHostPort(host); ok {
			host, port = h, p
		}
		if host == "" {
			return "", "", 0, fmt.Errorf("malformed hostspec %q: empty host", arg)
		}
		return host, path, port, nil
	}
	if idx := strings.IndexByte(arg, ':'); idx >= 0 {
		host = arg[:idx]
		path = arg[idx+1:]
		if host == "" {
			return "", "", 0, fmt.Errorf("malformed hostspec %q: empty host", arg)
		}
		return host, path, 0, nil
	}
	return "", "", 0, fmt.Errorf("not a hostspec: %q", arg)
}

func parseRsyncURL(rest string) (host, path string, port int, err error) {
	if idx := strings.IndexByte(rest, '@'); idx >= 0 {
		rest = rest[idx+1:]
	}
	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		return "", "", 0, fmt.Errorf("malformed rsync:// URL: missing module")
	}
	hostport := rest[:idx]
	path = rest[idx+1:]
	port = defaultRsyncdPort
	if h, p, ok := splitHostPort(hostport); ok {
		hostport, port = h, p
	}
	if hostport == "" {
		return "", "", 0, fmt.Errorf("malformed rsync:// URL: empty host")
	}
	return hostport, path, port, nil
}

// splitHostPort splits "host:port" (IPv4/hostname only; "[::1]:port"
// IPv6 literals are left to net.SplitHostPort-aware callers elsewhere,
// as rsync daemon specs don't commonly target bracketed literals).
func splitHostPort(hostport string) (host string, port int, ok bool) {
	idx := strings.LastIndexByte(hostport, ':')
	if idx < 0 {
		return hostport, 0, false
	}
	p, err := strconv.Atoi(hostport[idx+1:])
	if err != nil {
		return hostport, 0, false
	}
	return hostport[:idx], p, true
}

// moduleAndPath splits a daemon path argument "module/sub/dir" into
// the module name and the remainder.
func moduleAndPath(p string) (module, rest string) {
	if idx := strings.IndexByte(p, '/'); idx >= 0 {
		return p[:idx], p[idx+1:]
	}
	return p, ""
}
