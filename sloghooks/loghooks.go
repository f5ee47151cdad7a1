// Package sloghooks logs cache hook events through log/slog, with
// per-event sampling so hot paths cannot flood the log.
package sloghooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/stagcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	EnvelopeErrorEvery uint64
	DrainEvery         uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	envelopeCtr atomic.Uint64
	drainCtr    atomic.Uint64
}

var _ stagcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) EnvelopeError(key string, err error) {
	if h.l == nil || !sample(h.opts.EnvelopeErrorEvery, &h.envelopeCtr) {
		return
	}
	h.l.Error("cache envelope unreadable",
		slog.String("key", h.redact(key)),
		slog.Any("err", err),
	)
}

func (h *Hooks) DiskWriteError(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("cache disk write failed",
		slog.String("key", h.redact(key)),
		slog.Any("err", err),
	)
}

func (h *Hooks) DeferredDrained(applied, failed int) {
	if h.l == nil || !sample(h.opts.DrainEvery, &h.drainCtr) {
		return
	}
	lvl := slog.LevelDebug
	if failed > 0 {
		lvl = slog.LevelWarn
	}
	h.l.Log(context.Background(), lvl, "deferred updates drained",
		slog.Int("applied", applied),
		slog.Int("failed", failed),
	)
}
