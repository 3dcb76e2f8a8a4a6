// Package pricehistory implements the throttled mid-price sampler: a
// size-bounded ring of (time, price) samples gated by absolute/percentage
// change thresholds, with an urgent-change callout through the Notifier
// collaborator and a periodic disk flush.
package pricehistory

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"lobstream/internal/collab"
)

// Sample is one recorded (time, price) point.
type Sample struct {
	At    time.Time
	Price float64
}

// Config gates record() and flush_if_due().
type Config struct {
	MinTimeInterval time.Duration
	MinChangePct    float64
	MinChangeAbs    float64
	BigChangePct    float64
	MaxSize         int
	WriteInterval   time.Duration
}

// Record is the persisted shape: a bounded window of samples plus the most
// recent one, matching spec.md §6's price-history file format.
type Record struct {
	Timestamp string    `json:"timestamp"`
	ProductID string    `json:"product_id"`
	Times     []string  `json:"times"`
	Prices    []float64 `json:"prices"`
	LastPrice float64   `json:"last_price"`
	LastTime  string    `json:"last_time"`
}

// Writer persists a PriceHistory's current state at most once per interval;
// satisfied structurally by internal/snapshot's Writer.
type Writer interface {
	MaybeWrite(now time.Time, producer func() any) (bool, error)
}

// PriceHistory is the per-symbol rolling sampler. It has no reset: a batch
// worker creates one per symbol at startup and keeps it for the worker's
// whole run, so its samples carry over when a new snapshot recreates the
// symbol's Book.
type PriceHistory struct {
	symbol   string
	cfg      Config
	notifier collab.Notifier
	log      *zap.Logger

	samples []Sample
	hasLast bool
	last    Sample
}

// New returns an empty PriceHistory for symbol.
func New(symbol string, cfg Config, notifier collab.Notifier, log *zap.Logger) *PriceHistory {
	return &PriceHistory{
		symbol:   symbol,
		cfg:      cfg,
		notifier: notifier,
		log:      log,
		samples:  make([]Sample, 0, cfg.MaxSize),
	}
}

// Record applies spec.md §4.5's gating sequence for a new observed price at
// time now. hasPrice false is the "price absent" no-op case.
func (h *PriceHistory) Record(ctx context.Context, now time.Time, price float64, hasPrice bool) {
	if !hasPrice {
		return
	}
	if !h.hasLast {
		h.append(now, price)
		h.last = Sample{At: now, Price: price}
		h.hasLast = true
		return
	}
	if now.Sub(h.last.At) < h.cfg.MinTimeInterval {
		return
	}

	pctChange := math.Abs(price-h.last.Price) / h.last.Price
	absChange := math.Abs(price - h.last.Price)

	if pctChange >= h.cfg.BigChangePct {
		h.notifyUrgent(ctx, now, price)
	}

	if pctChange >= h.cfg.MinChangePct || absChange >= h.cfg.MinChangeAbs {
		h.append(now, price)
	}
	h.last = Sample{At: now, Price: price}
}

func (h *PriceHistory) append(now time.Time, price float64) {
	h.samples = append(h.samples, Sample{At: now, Price: price})
	if len(h.samples) > h.cfg.MaxSize {
		h.samples = h.samples[len(h.samples)-h.cfg.MaxSize:]
	}
}

func (h *PriceHistory) notifyUrgent(ctx context.Context, now time.Time, price float64) {
	if h.notifier == nil {
		return
	}
	times := make([]string, len(h.samples))
	prices := make([]float64, len(h.samples))
	for i, s := range h.samples {
		times[i] = s.At.UTC().Format(time.RFC3339)
		prices[i] = s.Price
	}
	if err := h.notifier.Send(ctx, h.symbol, times, prices); err != nil {
		h.log.Warn("urgent price notification failed", zap.String("symbol", h.symbol), zap.Error(err))
	}
}

// FlushIfDue writes the current history to w, which owns the
// write_interval gate itself (spec.md §4.6's maybe_write contract).
func (h *PriceHistory) FlushIfDue(now time.Time, w Writer) (bool, error) {
	return w.MaybeWrite(now, func() any { return h.toRecord(now) })
}

func (h *PriceHistory) toRecord(now time.Time) Record {
	times := make([]string, len(h.samples))
	prices := make([]float64, len(h.samples))
	for i, s := range h.samples {
		times[i] = s.At.UTC().Format(time.RFC3339)
		prices[i] = s.Price
	}
	return Record{
		Timestamp: now.UTC().Format(time.RFC3339),
		ProductID: h.symbol,
		Times:     times,
		Prices:    prices,
		LastPrice: h.last.Price,
		LastTime:  h.last.At.UTC().Format(time.RFC3339),
	}
}
