package rsyncopts

import (
	"fmt"
	"strconv"
	"strings"
)

// argInfo names how a poptOption consumes its argument, mirroring the
// subset of popt(3)'s POPT_ARG_* argument-type flags this parser
// supports: a bare switch, a string value, an integer value, a fixed
// value stored verbatim, or a fixed value OR'd into the target.
type argInfo int

const (
	POPT_ARG_NONE argInfo = iota
	POPT_ARG_STRING
	POPT_ARG_INT
	POPT_ARG_VAL
	POPT_BIT_SET
)

// poptOption is one entry in an option table: a long name (without the
// leading "--"), an optional single-character short name, how its
// argument (if any) is consumed, and either a pointer to the field it
// populates directly (arg != nil) or a value returned to the caller's
// switch for special-case handling (arg == nil, val is the returned
// code).
type poptOption struct {
	longName  string
	shortName string
	argInfo   argInfo
	arg       any
	val       int
}

// PoptError reports a command-line parsing failure, carrying enough
// context for the caller to decide whether it originated while parsing
// daemon-mode arguments (rsyncd.conf-style invocations reuse the same
// engine with a different table).
type PoptError struct {
	Option     string
	Msg        string
	DaemonMode bool
}

func (e *PoptError) Error() string {
	if e.Option == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Option, e.Msg)
}

// Context holds the state of one option-parsing pass: the option table
// being matched against, the raw argument vector, the parser's current
// position within it, and the positional arguments collected so far
// (module/path arguments, in rsync's case).
type Context struct {
	Options *Options

	table         []poptOption
	args          []string
	argIdx        int
	clusterRest   string // remaining short-option characters in the token currently being scanned
	RemainingArgs []string
	lastOptArg    string
}

func (pc *Context) findLong(name string) *poptOption {
	for i := range pc.table {
		if pc.table[i].longName == name {
			return &pc.table[i]
		}
	}
	return nil
}

func (pc *Context) findShort(ch byte) *poptOption {
	s := string(ch)
	for i := range pc.table {
		if pc.table[i].shortName == s {
			return &pc.table[i]
		}
	}
	return nil
}

// poptGetOptArg returns the string argument consumed by the most
// recently returned option that took one (only meaningful for options
// whose poptOption.arg is nil; bound options store directly into their
// target field instead).
func (pc *Context) poptGetOptArg() string {
	return pc.lastOptArg
}

// poptGetNextOpt scans pc.args for the next recognized option,
// returning (opt.val, nil) for any option the caller must special-case
// (arg == nil in the table), storing directly into the table entry's
// bound field and continuing past any option that doesn't need special
// handling, -1 once the argument vector is exhausted, and a *PoptError
// on an unrecognized or malformed option.
func (pc *Context) poptGetNextOpt() (int, error) {
	for {
		if pc.clusterRest != "" {
			val, done, err := pc.consumeShort()
			if err != nil {
				return 0, err
			}
			if done {
				return val, nil
			}
			continue
		}

		if pc.argIdx >= len(pc.args) {
			return -1, nil
		}
		tok := pc.args[pc.argIdx]

		switch {
		case tok == "--":
			pc.argIdx++
			pc.RemainingArgs = append(pc.RemainingArgs, pc.args[pc.argIdx:]...)
			pc.argIdx = len(pc.args)
			return -1, nil

		case strings.HasPrefix(tok, "--") && len(tok) > 2:
			pc.argIdx++
			val, done, err := pc.consumeLong(tok[2:])
			if err != nil {
				return 0, err
			}
			if done {
				return val, nil
			}
			continue

		case tok != "-" && strings.HasPrefix(tok, "-"):
			pc.argIdx++
			pc.clusterRest = tok[1:]
			continue

		default:
			pc.RemainingArgs = append(pc.RemainingArgs, tok)
			pc.argIdx++
		}
	}
}

// consumeLong handles one "--name" or "--name=value" token (the leading
// "--" already stripped), returning done=true when the caller's switch
// needs to see the returned val.
func (pc *Context) consumeLong(rest string) (val int, done bool, err error) {
	name := rest
	inline, hasInline := "", false
	if i := strings.IndexByte(rest, '='); i >= 0 {
		name = rest[:i]
		inline = rest[i+1:]
		hasInline = true
	}
	opt := pc.findLong(name)
	if opt == nil {
		return 0, false, &PoptError{Option: "--" + name, Msg: "unknown option"}
	}
	return pc.applyOpt(opt, hasInline, inline)
}

// consumeShort advances through pc.clusterRest one short option at a
// time, since rsync's combined short flags (e.g. "-vvz") pack several
// single-character options into one token.
func (pc *Context) consumeShort() (val int, done bool, err error) {
	ch := pc.clusterRest[0]
	opt := pc.findShort(ch)
	if opt == nil {
		return 0, false, &PoptError{Option: "-" + string(ch), Msg: "unknown option"}
	}
	pc.clusterRest = pc.clusterRest[1:]

	if opt.argInfo == POPT_ARG_STRING || opt.argInfo == POPT_ARG_INT {
		var argStr string
		if pc.clusterRest != "" {
			argStr = pc.clusterRest
			pc.clusterRest = ""
		} else {
			if pc.argIdx >= len(pc.args) {
				return 0, false, &PoptError{Option: "-" + string(ch), Msg: "missing argument"}
			}
			argStr = pc.args[pc.argIdx]
			pc.argIdx++
		}
		return pc.storeArg(opt, argStr)
	}
	return pc.applyOpt(opt, false, "")
}

// applyOpt carries out the behavior for one matched option. For
// POPT_ARG_NONE/VAL/BIT_SET it stores immediately and reports whether
// the caller must also see the return value (done=true only when
// opt.arg is nil, i.e. the table asked for special-case handling).
func (pc *Context) applyOpt(opt *poptOption, hasInline bool, inline string) (val int, done bool, err error) {
	switch opt.argInfo {
	case POPT_ARG_STRING, POPT_ARG_INT:
		argStr := inline
		if !hasInline {
			if pc.argIdx >= len(pc.args) {
				return 0, false, &PoptError{Option: opt.longName, Msg: "missing argument"}
			}
			argStr = pc.args[pc.argIdx]
			pc.argIdx++
		}
		return pc.storeArg(opt, argStr)

	case POPT_ARG_VAL:
		if p, ok := opt.arg.(*int); ok {
			*p = opt.val
		}
		return 0, false, nil

	case POPT_BIT_SET:
		if p, ok := opt.arg.(*int); ok {
			*p |= opt.val
		}
		return 0, false, nil

	default: // POPT_ARG_NONE
		if opt.arg == nil {
			return opt.val, true, nil
		}
		switch p := opt.arg.(type) {
		case *int:
			*p = 1
		}
		return 0, false, nil
	}
}

// storeArg finishes a STRING/INT option once its argument text is
// known, either writing it into the bound field or, when the table
// asked for special-case handling (arg == nil), stashing it for
// poptGetOptArg and surfacing opt.val.
func (pc *Context) storeArg(opt *poptOption, argStr string) (val int, done bool, err error) {
	if opt.arg == nil {
		pc.lastOptArg = argStr
		return opt.val, true, nil
	}
	switch p := opt.arg.(type) {
	case *string:
		*p = argStr
	case *int:
		n, convErr := strconv.Atoi(argStr)
		if convErr != nil {
			return 0, false, &PoptError{Option: opt.longName, Msg: fmt.Sprintf("invalid integer argument %q", argStr)}
		}
		*p = n
	}
	return 0, false, nil
}
