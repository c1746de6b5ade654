package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/freshora-backend/pkg/db/models"
	"github.com/angelmondragon/freshora-backend/pkg/logger"
	"github.com/angelmondragon/freshora-backend/pkg/outbox/payloads"
	pkgstripe "github.com/angelmondragon/freshora-backend/pkg/stripe"
)

const (
	defaultPendingPaymentAge = 30 * time.Minute
	defaultSweepBatchSize    = 100
)

type stalePendingReader interface {
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	MarkPaymentChecked(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

type sessionRetriever interface {
	RetrieveSession(ctx context.Context, sessionID string) (*pkgstripe.Session, error)
}

type paymentApplier interface {
	ApplyPayment(ctx context.Context, sess *pkgstripe.Session, source string) (string, error)
}

// PendingPaymentSweepJobParams configure the sweep that recovers card orders
// whose payment confirmation never arrived.
type PendingPaymentSweepJobParams struct {
	Logger    *logger.Logger
	Orders    stalePendingReader
	Sessions  sessionRetriever
	Payments  paymentApplier
	Age       time.Duration
	BatchSize int
}

func NewPendingPaymentSweepJob(params PendingPaymentSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session retriever required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment applier required")
	}
	age := params.Age
	if age <= 0 {
		age = defaultPendingPaymentAge
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	return &pendingPaymentSweepJob{
		logg:     params.Logger,
		orders:   params.Orders,
		sessions: params.Sessions,
		payments: params.Payments,
		age:      age,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type pendingPaymentSweepJob struct {
	logg     *logger.Logger
	orders   stalePendingReader
	sessions sessionRetriever
	payments paymentApplier
	age      time.Duration
	batch    int
	now      func() time.Time
}

func (j *pendingPaymentSweepJob) Name() string { return "pending-payment-sweep" }

// Run checks one batch. Orders left pending are stamped so the next run
// starts with orders it has not looked at yet.
func (j *pendingPaymentSweepJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.age)
	rows, err := j.orders.FindStalePending(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("load stale pending orders: %w", err)
	}

	var (
		errs      error
		recovered int
		skipped   int
		unsettled []uuid.UUID
	)
	for i := range rows {
		order := &rows[i]
		if order.PaymentSessionID == nil || *order.PaymentSessionID == "" {
			skipped++
			unsettled = append(unsettled, order.ID)
			continue
		}
		orderCtx := j.logg.WithOrderID(ctx, order.ID.String())
		sess, err := j.sessions.RetrieveSession(orderCtx, *order.PaymentSessionID)
		if err != nil {
			unsettled = append(unsettled, order.ID)
			errs = multierr.Append(errs, fmt.Errorf("order %s: retrieve session: %w", order.ID, err))
			continue
		}
		if !sess.Paid() {
			skipped++
			unsettled = append(unsettled, order.ID)
			continue
		}
		outcome, err := j.payments.ApplyPayment(orderCtx, sess, payloads.PaidSourceSweep)
		if err != nil {
			unsettled = append(unsettled, order.ID)
			errs = multierr.Append(errs, fmt.Errorf("order %s: apply payment: %w", order.ID, err))
			continue
		}
		j.logg.Info(j.logg.WithField(orderCtx, "outcome", outcome), "pending payment recovered")
		recovered++
	}
	if err := j.orders.MarkPaymentChecked(ctx, unsettled, now); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("stamp checked orders: %w", err))
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"scanned":   len(rows),
		"recovered": recovered,
		"skipped":   skipped,
		"failed":    len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "pending payment sweep complete")
	return errs
}
