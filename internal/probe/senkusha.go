// Package probe implements the Senkusha MTU/RTT probe stage that runs
// after the control channel reports readiness and before crypto key
// material is prepared (spec.md §4.3 step 8).
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result holds the probe's findings; on failure the caller falls back to
// the fixed values spec.md §4.3 step 8 specifies.
type Result struct {
	MTUIn, MTUOut int
	RTTMicros     int
}

// FallbackResult is what the session machine substitutes when the probe
// fails for any reason other than cancellation.
var FallbackResult = Result{MTUIn: 1454, MTUOut: 1454, RTTMicros: 1000}

// Prober is the contract the session depends on for the probe stage.
type Prober interface {
	Run(ctx context.Context) (Result, error)
}

// Config parameterizes defaultProber.
type Config struct {
	Host string
	Port int // default 9295; each sub-measurement dials its own UDP socket to it
}

// defaultProber runs the three sub-measurements concurrently with
// golang.org/x/sync/errgroup, cancelling the remaining two the moment any
// one hard-fails or the context is cancelled — the same
// bounded-concurrent-checks-with-shared-cancellation shape
// transport.Pool.checkAllHealth uses for its per-member health checks,
// generalized here from a recurring ticker loop to one bounded round.
type defaultProber struct {
	cfg Config
}

// NewProber returns the production Prober implementation.
func NewProber(cfg Config) Prober {
	return &defaultProber{cfg: cfg}
}

func (p *defaultProber) Run(ctx context.Context) (Result, error) {
	g, ctx := errgroup.WithContext(ctx)

	var result Result
	g.Go(func() error {
		mtu, err := p.probeMTU(ctx, true)
		if err != nil {
			return err
		}
		result.MTUIn = mtu
		return nil
	})
	g.Go(func() error {
		mtu, err := p.probeMTU(ctx, false)
		if err != nil {
			return err
		}
		result.MTUOut = mtu
		return nil
	})
	g.Go(func() error {
		rtt, err := p.probeRTT(ctx)
		if err != nil {
			return err
		}
		result.RTTMicros = rtt
		return nil
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return Result{}, context.Canceled
		}
		return Result{}, err
	}
	return result, nil
}

// probeMTU performs a coarse binary search for the largest UDP datagram
// the path between the embedder and the console accepts. inbound does not
// change the measurement: both directions run the same outbound-write
// search. This is a simplified stand-in for Chiaki's actual Senkusha
// exchange (out of scope per spec.md §1) sufficient to exercise a bounded
// concurrent network probe.
func (p *defaultProber) probeMTU(ctx context.Context, inbound bool) (int, error) {
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.port())
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return 0, fmt.Errorf("probe mtu: %w", err)
	}
	defer conn.Close()

	lo, hi := 576, 1454
	best := lo
	for lo <= hi {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		mid := (lo + hi) / 2
		ok := p.tryDatagramSize(conn, mid)
		if ok {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	_ = inbound
	return best, nil
}

func (p *defaultProber) tryDatagramSize(conn net.Conn, size int) bool {
	conn.SetDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, size)
	_, err := conn.Write(buf)
	return err == nil
}

func (p *defaultProber) probeRTT(ctx context.Context) (int, error) {
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.port())
	var d net.Dialer
	start := time.Now()
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return 0, fmt.Errorf("probe rtt: %w", err)
	}
	defer conn.Close()
	elapsed := time.Since(start)
	return int(elapsed.Microseconds()), nil
}

func (p *defaultProber) port() int {
	if p.cfg.Port != 0 {
		return p.cfg.Port
	}
	return 9295
}
