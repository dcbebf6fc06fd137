package job

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mailops/internal/order"
	"mailops/internal/repository"
	"mailops/internal/scheduler"
	"mailops/pkg/logger"
)

// OrderStatusParams narrows a status refresh run.
type OrderStatusParams struct {
	Limit int `json:"limit"`
}

// OrderStatusJob polls the external status source for orders that have not
// reached a terminal status. A rate-limit response aborts the remainder of
// the batch; connection failures fail the run so the retry policy applies.
type OrderStatusJob struct {
	orders repository.OrderInterface
	client order.StatusClient
}

func NewOrderStatusJob(orders repository.OrderInterface, client order.StatusClient) *OrderStatusJob {
	return &OrderStatusJob{orders: orders, client: client}
}

func (j *OrderStatusJob) Name() string { return "order_status_update" }

func (j *OrderStatusJob) Run(ctx context.Context, params []byte) (*scheduler.Result, error) {
	var p OrderStatusParams
	if err := decodeParams(params, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	active, err := j.orders.ListActive(ctx, p.Limit)
	if err != nil {
		return nil, err
	}

	var (
		refreshed   int
		notFound    int
		rateLimited bool
		skipped     []string
	)
	for _, o := range active {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		snap, err := j.client.FetchStatus(ctx, o.OrderNumber)
		switch {
		case errors.Is(err, order.ErrNotFound):
			notFound++
			skipped = append(skipped, fmt.Sprintf("%s: not found at source", o.OrderNumber))
			continue
		case errors.Is(err, order.ErrRateLimited):
			rateLimited = true
		case err != nil:
			// Source unreachable; the whole run fails and retries later.
			return nil, err
		}
		if rateLimited {
			break
		}

		if err := j.orders.UpdateStatusFields(ctx, o.ID, repository.StatusFields{
			Status:           snap.Status,
			TrackingNumber:   snap.TrackingNumber,
			EstimatedArrival: snap.EstimatedArrival,
			DeliveredAt:      snap.DeliveredAt,
		}); err != nil {
			return nil, err
		}
		refreshed++

		if o.Status != snap.Status {
			logger.Info("order status changed",
				zap.String("order_number", o.OrderNumber),
				zap.String("from", string(o.Status)),
				zap.String("to", string(snap.Status)),
			)
		}
	}

	res := &scheduler.Result{
		Summary: map[string]any{
			"active":       len(active),
			"refreshed":    refreshed,
			"not_found":    notFound,
			"rate_limited": rateLimited,
		},
	}
	if len(skipped) > 0 {
		res.ErrorOutput = strings.Join(skipped, "\n")
	}
	if rateLimited {
		res.Output = fmt.Sprintf("rate limited after %d of %d orders", refreshed, len(active))
	}
	return res, nil
}
