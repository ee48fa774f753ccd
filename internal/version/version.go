// Package version supplies the banner string the CLI's --version flag
// and the daemon's legacy greeting help text print.
package version

// moduleVersion is bumped by hand; there is no embedded VCS build info
// available to a module vendored standalone like this one.
const moduleVersion = "0.1.0"

// Read returns the version banner string.
func Read() string {
	return "rsync-sub020 version " + moduleVersion + " (protocol versions 28-32)"
}
