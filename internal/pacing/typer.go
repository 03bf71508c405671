// Package pacing makes replies feel typed by a person: it computes reading,
// thinking and per-character delays and streams text at that pace. It
// schedules output only and never changes the text.
package pacing

import (
	"context"
	"iter"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"github.com/antoniostano/joi/internal/reliability"
)

const (
	secondsPerWord     = 0.25
	readingDelayCap    = 4.0
	hesitationChance   = 0.05
	spaceSpeedup       = 0.7
	thinkingMinSeconds = 1.0
	thinkingMaxSeconds = 3.0
)

// Source supplies uniform floats in [0, 1).
type Source interface {
	Float64() float64
}

// globalSource draws from the math/rand/v2 top-level generator, which is
// safe for concurrent use.
type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// Typer computes human-like delays. Scale multiplies every delay; 0 turns
// pacing off. A Typer is shared across connections; a Source given to
// WithSource must be safe for concurrent use when it is.
type Typer struct {
	rng   Source
	scale float64
	sleep func(context.Context, time.Duration) error
}

type Option func(*Typer)

func WithSource(src Source) Option {
	return func(t *Typer) {
		if src != nil {
			t.rng = src
		}
	}
}

func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(t *Typer) {
		if fn != nil {
			t.sleep = fn
		}
	}
}

func NewTyper(scale float64, opts ...Option) *Typer {
	if scale < 0 {
		scale = 0
	}
	t := &Typer{
		rng:   globalSource{},
		scale: scale,
		sleep: reliability.Sleep,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ReadingDelay models the time to read an incoming message.
func (t *Typer) ReadingDelay(message string) time.Duration {
	words := len(strings.Fields(message))
	delay := float64(words)*secondsPerWord + t.uniform(0.5, 1.5)
	return t.seconds(min(delay, readingDelayCap))
}

// ThinkingDelay models the pause before starting to type.
func (t *Typer) ThinkingDelay() time.Duration {
	return t.seconds(t.uniform(thinkingMinSeconds, thinkingMaxSeconds))
}

// CharDelay is the pause before typing char, given the previous character.
// Punctuation and random hesitation add time; spaces are typed faster.
func (t *Typer) CharDelay(char, prev rune) time.Duration {
	base := t.uniform(0.03, 0.07)
	switch prev {
	case '.', '!', '?':
		base += t.uniform(0.3, 0.6)
	case ',':
		base += t.uniform(0.1, 0.3)
	}
	if t.rng.Float64() < hesitationChance {
		base += t.uniform(0.2, 0.5)
	}
	if char == ' ' {
		base *= spaceSpeedup
	}
	return t.seconds(base)
}

// Read sleeps for the reading delay of message.
func (t *Typer) Read(ctx context.Context, message string) error {
	return t.sleep(ctx, t.ReadingDelay(message))
}

// Think sleeps for a thinking delay.
func (t *Typer) Think(ctx context.Context) error {
	return t.sleep(ctx, t.ThinkingDelay())
}

// Pause sleeps for a fixed duration, scaled like every other delay.
func (t *Typer) Pause(ctx context.Context, d time.Duration) error {
	return t.sleep(ctx, time.Duration(float64(d)*t.scale))
}

// Chars yields text one character at a time, sleeping before each one. The
// sequence stops early when ctx is done. It can be ranged over once; later
// ranges yield nothing.
func (t *Typer) Chars(ctx context.Context, text string) iter.Seq[string] {
	var used atomic.Bool
	return func(yield func(string) bool) {
		if used.Swap(true) {
			return
		}
		var prev rune
		for _, ch := range text {
			if err := t.sleep(ctx, t.CharDelay(ch, prev)); err != nil {
				return
			}
			if !yield(string(ch)) {
				return
			}
			prev = ch
		}
	}
}

// TypeResponse streams text into emit at typing pace.
func (t *Typer) TypeResponse(ctx context.Context, text string, emit func(string) error) error {
	for ch := range t.Chars(ctx, text) {
		if err := emit(ch); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (t *Typer) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*t.rng.Float64()
}

func (t *Typer) seconds(s float64) time.Duration {
	if s < 0 {
		s = 0
	}
	return time.Duration(s * t.scale * float64(time.Second))
}
