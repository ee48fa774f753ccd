package negotiation

import (
	"bytes"
	"testing"

	"github.com/oferchen/rsync-sub020/internal/checksum"
	"github.com/oferchen/rsync-sub020/internal/rsyncwire"
)

func TestPrologueDetectorBinary(t *testing.T) {
	d := NewPrologueDetector()
	dec, consumed := d.Observe([]byte{0x1e, 0x00, 0x00, 0x00})
	if dec != PrologueBinary {
		t.Fatalf("decision = %v, want PrologueBinary", dec)
	}
	if consumed != 1 {
		t.Errorf("consumed = %d, want 1", consumed)
	}
}

func TestPrologueDetectorLegacy(t *testing.T) {
	d := NewPrologueDetector()
	input := []byte("@RSYNCD: 30.0\n")
	dec, consumed := d.Observe(input)
	if dec != PrologueLegacy {
		t.Fatalf("decision = %v, want PrologueLegacy", dec)
	}
	if consumed != len("@RSYNCD: ") {
		t.Errorf("consumed = %d, want %d", consumed, len("@RSYNCD: "))
	}
	if !d.LegacyPrefixComplete() {
		t.Errorf("expected legacy prefix complete")
	}
}

func TestNegotiateVersionClampsToMin(t *testing.T) {
	var clientBuf, serverBuf bytes.Buffer
	client := rsyncwire.NewConnection(&serverBuf, &clientBuf)
	server := rsyncwire.NewConnection(&clientBuf, &serverBuf)

	clientV := int32(33)
	serverV := int32(32)

	var gotClient, gotServer int32
	var errClient, errServer error
	done := make(chan struct{})
	go func() {
		gotServer, errServer = NegotiateVersion(server, serverV)
		close(done)
	}()
	gotClient, errClient = NegotiateVersion(client, clientV)
	<-done

	if errClient != nil || errServer != nil {
		t.Fatalf("errors: client=%v server=%v", errClient, errServer)
	}
	if gotClient != 32 || gotServer != 32 {
		t.Errorf("negotiated versions = %d, %d, want 32, 32", gotClient, gotServer)
	}
}

func TestNegotiateVersionRejectsBelowMinimum(t *testing.T) {
	var clientBuf, serverBuf bytes.Buffer
	client := rsyncwire.NewConnection(&serverBuf, &clientBuf)
	server := rsyncwire.NewConnection(&clientBuf, &serverBuf)

	done := make(chan struct{})
	go func() {
		NegotiateVersion(server, 32)
		close(done)
	}()
	_, err := NegotiateVersion(client, 27)
	<-done
	if err == nil {
		t.Fatal("expected error negotiating version 27")
	}
}

func TestChooseDigestPrefersStrongest(t *testing.T) {
	ours := []checksum.DigestKind{checksum.DigestMD4, checksum.DigestMD5, checksum.DigestXXH3_128}
	theirs := []checksum.DigestKind{checksum.DigestMD5, checksum.DigestXXH3_128}
	got := ChooseDigest(30, ours, theirs)
	if got != checksum.DigestXXH3_128 {
		t.Errorf("got %v, want DigestXXH3_128", got)
	}
}

func TestChooseDigestFallsBackToDefault(t *testing.T) {
	got := ChooseDigest(30, nil, nil)
	if got != checksum.DigestMD5 {
		t.Errorf("got %v, want DigestMD5", got)
	}
	got = ChooseDigest(29, nil, nil)
	if got != checksum.DigestMD4 {
		t.Errorf("got %v, want DigestMD4", got)
	}
}
