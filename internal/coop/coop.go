// Package coop provides the cooperative scheduling primitives used by long
// scans: an injectable Scheduler that is called between chunks, and
// generation tokens that let a newer request supersede older work.
package coop

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	apperrors "github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/errors"
)

// ErrSuperseded is returned by cooperative work whose token was overtaken by
// a newer request. Callers treat it as silent abandonment, not failure.
var ErrSuperseded = fmt.Errorf("coop: %w", apperrors.ErrSuperseded)

// Scheduler is called at every suspension point. Implementations may park
// the caller, run other work, or return immediately.
type Scheduler interface {
	Yield(ctx context.Context) error
}

// SchedulerFunc adapts a function to the Scheduler interface.
type SchedulerFunc func(ctx context.Context) error

func (f SchedulerFunc) Yield(ctx context.Context) error { return f(ctx) }

// Gosched yields the processor to other goroutines.
type Gosched struct{}

func (Gosched) Yield(ctx context.Context) error {
	runtime.Gosched()
	return ctx.Err()
}

// Inline never suspends; it only reports context cancellation.
type Inline struct{}

func (Inline) Yield(ctx context.Context) error { return ctx.Err() }

// Generation is a monotonically increasing counter. Each call to Next
// invalidates every token issued before it.
type Generation struct {
	n atomic.Uint64
}

// Next starts a new generation and returns its token.
func (g *Generation) Next() Token {
	return Token{gen: g, n: g.n.Add(1)}
}

// Current returns the latest generation number.
func (g *Generation) Current() uint64 {
	return g.n.Load()
}

// Token identifies one generation. The zero Token is never superseded.
type Token struct {
	gen *Generation
	n   uint64
}

// Valid reports whether no newer generation has started.
func (t Token) Valid() bool {
	return t.gen == nil || t.gen.n.Load() == t.n
}

// Err returns ErrSuperseded once the token is no longer valid.
func (t Token) Err() error {
	if t.Valid() {
		return nil
	}
	return ErrSuperseded
}

// Value returns the generation number the token was issued for.
func (t Token) Value() uint64 { return t.n }

// Pacer counts work steps and suspends every `every` steps, re-checking the
// token on resume.
type Pacer struct {
	sched Scheduler
	tok   Token
	every int
	count int
}

// NewPacer returns a Pacer. A nil sched never suspends and every <= 0
// disables suspension.
func NewPacer(sched Scheduler, tok Token, every int) *Pacer {
	if sched == nil {
		sched = Inline{}
	}
	return &Pacer{sched: sched, tok: tok, every: every}
}

// Step records one unit of work, suspending when a chunk boundary is reached.
func (p *Pacer) Step(ctx context.Context) error {
	p.count++
	if p.every <= 0 || p.count%p.every != 0 {
		return nil
	}
	return p.Pause(ctx)
}

// Pause suspends unconditionally and reports whether the work may continue.
func (p *Pacer) Pause(ctx context.Context) error {
	if err := p.sched.Yield(ctx); err != nil {
		return err
	}
	return p.tok.Err()
}

// Steps returns the number of steps recorded so far.
func (p *Pacer) Steps() int { return p.count }

// Chunked calls fn for every index in [0, n) and suspends after every chunk
// indices. It stops early with the scheduler's error or ErrSuperseded.
func Chunked(ctx context.Context, sched Scheduler, tok Token, n, chunk int, fn func(i int)) error {
	if err := tok.Err(); err != nil {
		return err
	}
	p := NewPacer(sched, tok, chunk)
	for i := 0; i < n; i++ {
		fn(i)
		if i+1 == n {
			break
		}
		if err := p.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}
