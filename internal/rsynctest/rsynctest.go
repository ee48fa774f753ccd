// Package rsynctest is a test harness for integration tests that need
// either a real rsync(1) binary to interoperate with, or an in-process
// rsyncd.Server listening on a loopback TCP port.
package rsynctest

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/oferchen/rsync-sub020/internal/testlogger"
	"github.com/oferchen/rsync-sub020/rsyncd"
)

// config accumulates the modules a Server is started with.
type config struct {
	modules []rsyncd.Module
}

// Option configures a Server started by New.
type Option func(*config)

// InteropModule registers a module named "interop" rooted at path, the
// convention every test in this package's callers uses.
func InteropModule(path string) Option {
	return func(c *config) {
		c.modules = append(c.modules, rsyncd.Module{
			Name: "interop",
			Path: path,
		})
	}
}

// Server is a running rsyncd.Server bound to a loopback port, shut down
// automatically via t.Cleanup.
type Server struct {
	Port string
}

// New starts an rsync daemon on localhost:0 for the duration of the
// test and returns once it is accepting connections.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := rsyncd.NewServer(cfg.modules, rsyncd.WithLogger(testlogger.New(t)))
	if err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ctx, ln); err != nil && ctx.Err() == nil {
			t.Logf("rsynctest: Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		ln.Close()
		<-done
	})

	_, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	return &Server{Port: port}
}

// AnyRsync locates a system rsync(1) binary, skipping the test if none
// is installed.
func AnyRsync(t testing.TB) string {
	t.Helper()
	path, err := exec.LookPath("rsync")
	if err != nil {
		t.Skip("system rsync(1) binary not found in PATH")
	}
	return path
}

// CreateDummyDeviceFiles populates dir with a character and a block
// special file (spec §4.5 "device and special files"), for tests that
// verify --devices preserves the major/minor pair. Requires root.
func CreateDummyDeviceFiles(t testing.TB, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	// major/minor of /dev/null and /dev/loop0, arbitrarily.
	if err := unix.Mknod(filepath.Join(dir, "char"), unix.S_IFCHR|0o600, int(unix.Mkdev(1, 3))); err != nil {
		t.Fatalf("mknod char device: %v", err)
	}
	if err := unix.Mknod(filepath.Join(dir, "block"), unix.S_IFBLK|0o600, int(unix.Mkdev(7, 0))); err != nil {
		t.Fatalf("mknod block device: %v", err)
	}
}

// VerifyDummyDeviceFiles checks that dst's device files created by
// CreateDummyDeviceFiles were recreated with matching major/minor pairs.
func VerifyDummyDeviceFiles(t testing.TB, src, dst string) {
	t.Helper()
	for _, name := range []string{"char", "block"} {
		sst, err := os.Lstat(filepath.Join(src, name))
		if err != nil {
			t.Fatal(err)
		}
		dst_, err := os.Lstat(filepath.Join(dst, name))
		if err != nil {
			t.Fatal(err)
		}
		srcSys, ok1 := sst.Sys().(*syscall.Stat_t)
		dstSys, ok2 := dst_.Sys().(*syscall.Stat_t)
		if !ok1 || !ok2 {
			t.Fatalf("%s: unexpected Sys() type", name)
		}
		if srcSys.Rdev != dstSys.Rdev {
			t.Errorf("%s: rdev mismatch: got %d, want %d", name, dstSys.Rdev, srcSys.Rdev)
		}
	}
}

const (
	headSize = 16 * 1024
	bodySize = 3 * 1024 * 1024
	endSize  = 16 * 1024
)

// largeDataFileName is the file name WriteLargeDataFile/DataFileMatches
// operate on within their dir argument.
const largeDataFileName = "large-data-file"

// WriteLargeDataFile writes a reproducible multi-megabyte file made of
// three patterned regions, so a second write with a changed body
// pattern exercises delta-transfer (only the changed region should be
// retransmitted).
func WriteLargeDataFile(t testing.TB, dir string, head, body, end []byte) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(filepath.Join(dir, largeDataFileName))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	for _, region := range []struct {
		pattern []byte
		size    int
	}{
		{head, headSize},
		{body, bodySize},
		{end, endSize},
	} {
		if _, err := f.Write(repeat(region.pattern, region.size)); err != nil {
			t.Fatal(err)
		}
	}
}

func repeat(pattern []byte, size int) []byte {
	buf := bytes.Repeat(pattern, size/len(pattern)+1)
	return buf[:size]
}

// DataFileMatches verifies the file at path against the three
// patterned regions WriteLargeDataFile would have produced.
func DataFileMatches(path string, head, body, end []byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	want := headSize + bodySize + endSize
	if len(data) != want {
		return fmt.Errorf("unexpected size: got %d, want %d", len(data), want)
	}
	if !bytes.Equal(data[:headSize], repeat(head, headSize)) {
		return fmt.Errorf("head region mismatch")
	}
	if !bytes.Equal(data[headSize:headSize+bodySize], repeat(body, bodySize)) {
		return fmt.Errorf("body region mismatch")
	}
	if !bytes.Equal(data[headSize+bodySize:], repeat(end, endSize)) {
		return fmt.Errorf("end region mismatch")
	}
	return nil
}
