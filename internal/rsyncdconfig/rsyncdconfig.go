// Package rsyncdconfig loads the daemon module configuration (spec
// §5 "Daemon mode"): one or more named modules, each exposing a
// filesystem path under access-control restrictions.
package rsyncdconfig

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/oferchen/rsync-sub020/rsyncd"
)

// File is the top-level shape of a TOML daemon config file.
type File struct {
	Listen  string           `toml:"listen"`
	Motd    string           `toml:"motd"`
	Modules []rsyncd.Module  `toml:"module"`
}

// Load reads a daemon config file, auto-detecting format: files
// starting with a `[module]`-less bracketed INI-style section (the
// historical rsyncd.conf grammar) are parsed with the INI-subset
// reader; everything else is parsed as TOML (spec §5: "configuration
// may be supplied in the historical rsyncd.conf syntax or, preferred,
// TOML").
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rsyncdconfig: read %s: %w", path, err)
	}
	if looksLikeLegacyINI(data) {
		return parseLegacyINI(data)
	}
	return parseTOML(data)
}

func parseTOML(data []byte) (*File, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("rsyncdconfig: parse toml: %w", err)
	}
	return &f, nil
}

// looksLikeLegacyINI reports whether data resembles a classic
// rsyncd.conf: a bracketed module header followed by `key = value`
// lines, as opposed to TOML's `[[module]]` array-of-tables syntax.
func looksLikeLegacyINI(data []byte) bool {
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[[") {
			return false
		}
		if strings.HasPrefix(line, "[") {
			return true
		}
		return false
	}
	return false
}

// parseLegacyINI parses the historical rsyncd.conf grammar: a
// bracketed `[modulename]` header starts a module section, followed
// by `key = value` lines until the next header or EOF. Global
// (pre-first-header) settings apply to the listen address and motd.
func parseLegacyINI(data []byte) (*File, error) {
	f := &File{}
	var cur *rsyncd.Module

	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := strings.TrimSpace(line[1 : len(line)-1])
			if cur != nil {
				f.Modules = append(f.Modules, *cur)
			}
			cur = &rsyncd.Module{Name: name}
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("rsyncdconfig: malformed line %q", line)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		if cur == nil {
			switch key {
			case "listen", "address", "port":
				f.Listen = mergeListen(f.Listen, key, val)
			case "motd file", "motd":
				f.Motd = val
			}
			continue
		}

		switch key {
		case "path":
			cur.Path = val
		case "read only":
			cur.Writable = !parseBool(val)
		case "write only":
			// write-only is not a dedicated field in rsyncd.Module;
			// represented as writable with an empty read ACL is out
			// of scope here, so this is intentionally ignored.
		case "auth users", "hosts allow", "hosts deny":
			cur.ACL = append(cur.ACL, key+":"+val)
		}
	}
	if cur != nil {
		f.Modules = append(f.Modules, *cur)
	}
	return f, nil
}

func mergeListen(existing, key, val string) string {
	if key == "port" {
		if existing == "" {
			return ":" + val
		}
		host, _, found := strings.Cut(existing, ":")
		if found {
			return host + ":" + val
		}
		return existing + ":" + val
	}
	return val
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return strings.EqualFold(s, "yes")
	}
	return b
}
