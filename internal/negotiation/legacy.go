package negotiation

import (
	"bufio"
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/oferchen/rsync-sub020/internal/rsyncerrors"
)

// LegacyGreeting is the "@RSYNCD: <major>.<minor>\n" line exchanged at
// the start of the legacy (v<=29) daemon protocol (spec §4.3 "Legacy
// path").
type LegacyGreeting struct {
	Major, Minor int
}

func (g LegacyGreeting) String() string {
	return fmt.Sprintf("@RSYNCD: %d.%d\n", g.Major, g.Minor)
}

// WriteLegacyGreeting sends our greeting line.
func WriteLegacyGreeting(w io.Writer, g LegacyGreeting) error {
	_, err := io.WriteString(w, g.String())
	return err
}

// ReadLegacyGreeting reads and parses a peer's greeting line.
func ReadLegacyGreeting(r *bufio.Reader) (LegacyGreeting, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return LegacyGreeting{}, fmt.Errorf("negotiation: reading legacy greeting: %w", err)
	}
	line = strings.TrimSuffix(line, "\n")
	const prefix = "@RSYNCD: "
	if !strings.HasPrefix(line, prefix) {
		return LegacyGreeting{}, fmt.Errorf("%w: malformed legacy greeting %q", rsyncerrors.ErrProtocol, line)
	}
	rest := strings.TrimPrefix(line, prefix)
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return LegacyGreeting{}, fmt.Errorf("%w: empty legacy greeting version", rsyncerrors.ErrProtocol)
	}
	var g LegacyGreeting
	if _, err := fmt.Sscanf(fields[0], "%d.%d", &g.Major, &g.Minor); err != nil {
		return LegacyGreeting{}, fmt.Errorf("%w: unparseable legacy version %q: %v", rsyncerrors.ErrProtocol, fields[0], err)
	}
	return g, nil
}

// WriteModuleName sends the requested module name, terminated by \n.
func WriteModuleName(w io.Writer, module string) error {
	_, err := io.WriteString(w, module+"\n")
	return err
}

// ReadLine reads a single \n-terminated line with the trailing newline
// stripped, used for the module name / OK acknowledgement exchange.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

const legacyOK = "@RSYNCD: OK"

// WriteOK sends the final legacy acknowledgement before the binary
// protocol resumes.
func WriteOK(w io.Writer) error {
	_, err := io.WriteString(w, legacyOK+"\n")
	return err
}

// AuthChallenge is a server-issued random challenge exchanged as
// "@RSYNCD: AUTHREQD <challenge>\n".
type AuthChallenge struct {
	Challenge string
}

func (a AuthChallenge) String() string {
	return fmt.Sprintf("@RSYNCD: AUTHREQD %s\n", a.Challenge)
}

// ComputeAuthResponse implements upstream's daemon-auth response:
// HMAC-MD5-like keyed digest of the challenge using the module secret,
// encoded as unpadded base64 ("base64, no padding" per spec §4.3).
func ComputeAuthResponse(secret, challenge string) string {
	mac := hmac.New(md5.New, []byte(secret))
	mac.Write([]byte(challenge))
	sum := mac.Sum(nil)
	return base64.RawStdEncoding.EncodeToString(sum)
}

// CheckAuthResponse compares a client's response to the expected value
// in constant time.
func CheckAuthResponse(secret, challenge, response string) bool {
	want := ComputeAuthResponse(secret, challenge)
	return hmac.Equal([]byte(want), []byte(response))
}
