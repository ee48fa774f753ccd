// Package bwlimit implements the token-bucket bandwidth limiter (spec
// §4.9): register(n_bytes) may sleep to enforce a rate, and
// recommended_read_size bounds the next read so the burst is never
// exceeded. The limiter is an injectable interface per spec §1 ("the
// bandwidth limiter (specified as an injectable rate-limit interface)");
// Limiter is the concrete token-bucket implementation of it.
package bwlimit

import (
	"io"
	"sync"
	"time"
)

// Pacer is the injectable rate-limit interface the rest of the core
// depends on.
type Pacer interface {
	Register(nBytes int)
	RecommendedReadSize(bufferSize int) int
}

// Limiter is a token-bucket pacer parameterised by
// (rate_bytes_per_second, burst_bytes).
type Limiter struct {
	mu        sync.Mutex
	rate      float64 // bytes/sec
	burst     float64 // bytes
	debt      float64 // bytes owed beyond the instantaneous rate
	lastCheck time.Time
	sleep     func(time.Duration)
}

// New constructs a Limiter. burst bounds the maximum debt the limiter
// will tolerate before Register starts sleeping.
func New(rateBytesPerSecond, burstBytes float64) *Limiter {
	return &Limiter{
		rate:      rateBytesPerSecond,
		burst:     burstBytes,
		lastCheck: time.Now(),
		sleep:     time.Sleep,
	}
}

// Register records that nBytes were just transferred, sleeping as
// necessary to keep the long-run rate at or below l.rate. Debt is
// clamped to burst (spec §4.9: "Debt is clamped to burst").
func (l *Limiter) Register(nBytes int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rate <= 0 {
		return
	}
	now := time.Now()
	elapsed := now.Sub(l.lastCheck).Seconds()
	l.lastCheck = now

	// Repaying debt as time passes, at l.rate bytes/sec.
	l.debt -= elapsed * l.rate
	if l.debt < 0 {
		l.debt = 0
	}
	l.debt += float64(nBytes)

	if l.debt > l.burst {
		excess := l.debt - l.burst
		sleepSecs := excess / l.rate
		l.debt = l.burst
		if sleepSecs > 0 {
			l.sleep(time.Duration(sleepSecs * float64(time.Second)))
			l.lastCheck = time.Now()
		}
	}
}

// RecommendedReadSize returns the largest chunk of bufferSize that can
// be consumed right now without immediately pushing debt past burst.
func (l *Limiter) RecommendedReadSize(bufferSize int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rate <= 0 {
		return bufferSize
	}
	now := time.Now()
	elapsed := now.Sub(l.lastCheck).Seconds()
	debt := l.debt - elapsed*l.rate
	if debt < 0 {
		debt = 0
	}
	remaining := l.burst - debt
	if remaining <= 0 {
		return 1 // always allow forward progress; Register will sleep off the excess
	}
	if remaining < float64(bufferSize) {
		return int(remaining)
	}
	return bufferSize
}

// SetRate updates the rate and resets accumulated debt (spec §4.9:
// "Updating the rate or burst resets internal debt").
func (l *Limiter) SetRate(rateBytesPerSecond float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rate = rateBytesPerSecond
	l.debt = 0
	l.lastCheck = time.Now()
}

// SetBurst updates the burst and resets accumulated debt.
func (l *Limiter) SetBurst(burstBytes float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.burst = burstBytes
	l.debt = 0
	l.lastCheck = time.Now()
}

// PacerForRate returns Unlimited when rateBytesPerSecond is 0 (no
// --bwlimit given), otherwise a token-bucket Limiter with a one-second
// burst allowance, matching rsync's own --bwlimit burst sizing.
func PacerForRate(rateBytesPerSecond float64) Pacer {
	if rateBytesPerSecond <= 0 {
		return Unlimited{}
	}
	return New(rateBytesPerSecond, rateBytesPerSecond)
}

// Unlimited is a Pacer that never sleeps and never restricts read size,
// used when no --bwlimit was given.
type Unlimited struct{}

func (Unlimited) Register(int)                  {}
func (Unlimited) RecommendedReadSize(n int) int { return n }

// PacedReader wraps an io.Reader, shrinking each read to P's
// RecommendedReadSize and registering the bytes actually read, so a
// transfer's inbound bandwidth is capped at P's rate.
type PacedReader struct {
	R io.Reader
	P Pacer
}

func (pr *PacedReader) Read(p []byte) (int, error) {
	if n := pr.P.RecommendedReadSize(len(p)); n < len(p) {
		p = p[:n]
	}
	n, err := pr.R.Read(p)
	pr.P.Register(n)
	return n, err
}

// PacedWriter wraps an io.Writer, splitting each write into chunks no
// larger than P's RecommendedReadSize and registering the bytes written,
// so a transfer's outbound bandwidth is capped at P's rate.
type PacedWriter struct {
	W io.Writer
	P Pacer
}

func (pw *PacedWriter) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		chunk := p[total:]
		if n := pw.P.RecommendedReadSize(len(chunk)); n < len(chunk) {
			chunk = chunk[:n]
		}
		n, err := pw.W.Write(chunk)
		total += n
		pw.P.Register(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
