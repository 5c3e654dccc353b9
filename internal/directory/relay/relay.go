// Package relay publishes identity directory outbox rows to the sync
// channel. It is the only path from the outbox to Redis: the service's
// immediate dispatch and the background loop both go through it.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/aussiebroadwan/backoffice/internal/directory/domain"
	"github.com/aussiebroadwan/backoffice/internal/directory/store"
	"github.com/aussiebroadwan/backoffice/internal/identitysync"
)

const (
	DefaultInterval  = 2 * time.Second
	DefaultBatchSize = 100
	DefaultRetention = 7 * 24 * time.Hour

	// maxErrorLen bounds last_error so a chatty driver error cannot bloat
	// the row.
	maxErrorLen = 512
)

type OutboxRelay struct {
	Store     store.Store
	Publisher identitysync.Publisher
	Logger    *slog.Logger

	Interval  time.Duration
	BatchSize int
	Retention time.Duration
	Now       func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(st store.Store, pub identitysync.Publisher, logger *slog.Logger) *OutboxRelay {
	return &OutboxRelay{
		Store:     st,
		Publisher: pub,
		Logger:    logger.With("module", "outbox_relay"),
		Interval:  DefaultInterval,
		BatchSize: DefaultBatchSize,
		Retention: DefaultRetention,
		Now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Dispatch publishes a single pending row. A row that is already published
// or locked by a concurrent RunOnce is left alone. A row behind an
// unpublished earlier version of its identity is left for RunOnce and
// reported as store.ErrQueued.
func (r *OutboxRelay) Dispatch(ctx context.Context, id uuid.UUID) error {
	var pubErr error
	err := r.Store.WithTx(ctx, func(tx store.Tx) error {
		msg, err := tx.Outbox().ClaimByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if errors.Is(err, store.ErrQueued) {
			pubErr = fmt.Errorf("dispatch outbox %s: %w", id, err)
			return nil
		}
		if err != nil {
			return err
		}
		pubErr, err = r.publish(ctx, tx, msg)
		return err
	})
	if err != nil {
		return err
	}
	return pubErr
}

// RunOnce publishes up to BatchSize pending rows oldest first and returns how
// many went out. Each claim yields one version per identity, so it claims
// again until the batch is full or nothing is left. It stops at the first
// publish failure so later versions of an identity do not overtake earlier
// ones.
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	published := 0
	var pubErr error
	err := r.Store.WithTx(ctx, func(tx store.Tx) error {
		for published < r.BatchSize {
			pending, err := tx.Outbox().ClaimPending(ctx, r.BatchSize-published)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				return nil
			}
			for _, msg := range pending {
				pubErr, err = r.publish(ctx, tx, msg)
				if err != nil {
					return err
				}
				if pubErr != nil {
					return nil
				}
				published++
			}
		}
		return nil
	})
	if err != nil {
		return published, err
	}
	return published, pubErr
}

// publish sends msg and records the outcome on its row. pubErr is a
// publish failure that has been recorded, so the transaction must still
// commit; err is a store failure that aborts it.
func (r *OutboxRelay) publish(ctx context.Context, tx store.Tx, msg domain.OutboxMessage) (pubErr, err error) {
	var env identitysync.Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		r.Logger.Error("outbox row unreadable", "outbox_id", msg.ID, "error", err)
		pubErr = fmt.Errorf("decode outbox %s: %w", msg.ID, err)
	} else if err := r.Publisher.Publish(ctx, env); err != nil {
		pubErr = fmt.Errorf("publish outbox %s: %w", msg.ID, err)
	}

	if pubErr != nil {
		return pubErr, tx.Outbox().MarkFailed(ctx, msg.ID, truncate(pubErr.Error()))
	}
	return nil, tx.Outbox().MarkPublished(ctx, msg.ID, r.Now().UTC())
}

// Prune deletes rows published longer than Retention ago.
func (r *OutboxRelay) Prune(ctx context.Context) (int64, error) {
	return r.Store.Outbox().DeletePublishedBefore(ctx, r.Now().Add(-r.Retention))
}

// Start runs RunOnce every Interval. After a failure the next run waits
// with exponential backoff, capped at ten intervals.
func (r *OutboxRelay) Start() {
	go r.run()
	r.Logger.Info("outbox relay started", "interval", r.Interval, "batch", r.BatchSize)
}

// Stop blocks until an in-progress run finishes.
func (r *OutboxRelay) Stop() {
	close(r.stopCh)
	<-r.doneCh
	r.Logger.Info("outbox relay stopped")
}

func (r *OutboxRelay) run() {
	defer close(r.doneCh)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.Interval
	bo.MaxInterval = 10 * r.Interval
	bo.MaxElapsedTime = 0

	lastPrune := time.Time{}
	wait := time.Duration(0)
	for {
		select {
		case <-r.stopCh:
			return
		case <-time.After(wait):
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.Interval*5)
		n, err := r.RunOnce(ctx)
		if err == nil && time.Since(lastPrune) > time.Hour {
			if pruned, perr := r.Prune(ctx); perr != nil {
				r.Logger.Warn("outbox prune failed", "error", perr)
			} else {
				lastPrune = time.Now()
				if pruned > 0 {
					r.Logger.Info("outbox pruned", "rows", pruned)
				}
			}
		}
		cancel()

		switch {
		case err != nil:
			wait = bo.NextBackOff()
			r.Logger.Warn("outbox relay run failed", "error", err, "retry_in", wait)
		case n == r.BatchSize:
			// More may be waiting.
			bo.Reset()
			wait = 0
		default:
			bo.Reset()
			wait = r.Interval
			if n > 0 {
				r.Logger.Info("outbox published", "rows", n)
			}
		}
	}
}

func truncate(s string) string {
	if len(s) > maxErrorLen {
		return s[:maxErrorLen]
	}
	return s
}
