package api

import (
	"context"
	"time"
)

// ==========================
// Per-IP rate limiting logic
// ==========================

// RequestKind separates cheap reads from the two expensive operations:
// GPX uploads, which rewrite a route's whole point set, and geocode
// backfills, which fan out to an external provider.
type RequestKind int

const (
	// RequestGeneral marks inexpensive lookups that still go through
	// the per-IP queue so one client cannot flood the server with
	// concurrent requests.
	RequestGeneral RequestKind = iota
	// RequestHeavy marks uploads and backfills. A cooldown after each
	// heavy call keeps one IP from hammering the geocoding provider or
	// re-uploading tracks in a tight loop.
	RequestHeavy
)

// RateLimiter sequences requests per client IP without mutexes.  Each
// IP gets its own goroutine; coordination is channels all the way down.
type RateLimiter struct {
	heavyCooldown time.Duration
	requests      chan keyedRequest
	now           func() time.Time
}

type keyedRequest struct {
	ip  string
	req ipRequest
}

type ipRequest struct {
	ctx      context.Context
	kind     RequestKind
	arrived  time.Time
	response chan acquireResponse
}

type acquireResponse struct {
	release      chan struct{}
	wait         bool
	waitDuration time.Duration
	err          error
}

// Permit is an acquired slot for one request.  Call Release when the
// handler finishes so the next queued request for this IP can proceed.
type Permit struct {
	release      chan struct{}
	WaitNotice   bool
	WaitDuration time.Duration
}

// Release signals the limiter goroutine that the request is done.  The
// channel is nilled out so a double release is harmless.
func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	close(p.release)
	p.release = nil
}

// NewRateLimiter constructs a limiter with the given cooldown for heavy
// endpoints and starts its coordination goroutine immediately.
func NewRateLimiter(heavyCooldown time.Duration) *RateLimiter {
	limiter := &RateLimiter{
		heavyCooldown: heavyCooldown,
		requests:      make(chan keyedRequest),
		now:           time.Now,
	}
	go limiter.loop()
	return limiter
}

// Acquire reserves a slot for the given IP and kind.  The permit must
// be released once the handler is done.  A nil limiter admits everyone.
func (l *RateLimiter) Acquire(ctx context.Context, ip string, kind RequestKind) (*Permit, error) {
	if l == nil {
		return nil, nil
	}

	respCh := make(chan acquireResponse, 1)
	req := ipRequest{ctx: ctx, kind: kind, arrived: l.now(), response: respCh}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case l.requests <- keyedRequest{ip: ip, req: req}:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respCh:
		if resp.err != nil {
			return nil, resp.err
		}
		return &Permit{
			release:      resp.release,
			WaitNotice:   resp.wait,
			WaitDuration: resp.waitDuration,
		}, nil
	}
}

func (l *RateLimiter) loop() {
	workers := make(map[string]chan ipRequest)

	for keyed := range l.requests {
		ch, ok := workers[keyed.ip]
		if !ok {
			ch = make(chan ipRequest)
			workers[keyed.ip] = ch
			go l.runIPWorker(ch)
		}

		select {
		case ch <- keyed.req:
		case <-keyed.req.ctx.Done():
			keyed.req.response <- acquireResponse{err: keyed.req.ctx.Err()}
		}
	}
}

// runIPWorker serializes one IP's requests and enforces the heavy
// cooldown between its expensive calls.
func (l *RateLimiter) runIPWorker(requests <-chan ipRequest) {
	var lastHeavyFinish time.Time

	for req := range requests {
		select {
		case <-req.ctx.Done():
			req.response <- acquireResponse{err: req.ctx.Err()}
			continue
		default:
		}

		now := l.now()
		totalWait := now.Sub(req.arrived)
		if totalWait < 0 {
			totalWait = 0
		}

		if req.kind == RequestHeavy && !lastHeavyFinish.IsZero() {
			readyAt := lastHeavyFinish.Add(l.heavyCooldown)
			if now = l.now(); now.Before(readyAt) {
				cooldownWait := readyAt.Sub(now)
				timer := time.NewTimer(cooldownWait)
				select {
				case <-req.ctx.Done():
					if !timer.Stop() {
						<-timer.C
					}
					req.response <- acquireResponse{err: req.ctx.Err()}
					continue
				case <-timer.C:
					totalWait += cooldownWait
				}
			}
		}

		release := make(chan struct{})
		resp := acquireResponse{
			release:      release,
			wait:         totalWait > 0,
			waitDuration: totalWait,
		}

		select {
		case <-req.ctx.Done():
			req.response <- acquireResponse{err: req.ctx.Err()}
			continue
		case req.response <- resp:
		}

		// Hold the slot until the handler releases it, even if the
		// client went away; the handler still owns the permit.
		select {
		case <-release:
		case <-req.ctx.Done():
			<-release
		}

		if req.kind == RequestHeavy {
			lastHeavyFinish = l.now()
		}
	}
}
