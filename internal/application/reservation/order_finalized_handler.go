package reservation

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopcore/stockhold/internal/domain/shared"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"go.uber.org/zap"
)

// Committer is the write side of the Manager used on order finalization
type Committer interface {
	Commit(ctx context.Context, cmd CommitCommand) (*stock.Outcome, error)
}

// OrderFinalizedHandler commits every reserved line of an order once payment
// has been confirmed by the order system.
type OrderFinalizedHandler struct {
	committer      Committer
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewOrderFinalizedHandler creates a new OrderFinalizedHandler
func NewOrderFinalizedHandler(committer Committer, logger *zap.Logger) *OrderFinalizedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderFinalizedHandler{
		committer: committer,
		logger:    logger,
	}
}

// SetEventPublisher sets the publisher for FulfillmentFailed events
func (h *OrderFinalizedHandler) SetEventPublisher(publisher shared.EventPublisher) {
	h.eventPublisher = publisher
}

// EventTypes returns the event types this handler is interested in
func (h *OrderFinalizedHandler) EventTypes() []string {
	return []string{stock.EventTypeOrderFinalized}
}

// Handle processes an OrderFinalizedEvent. It fails when a line could not be
// committed for a reason a retry may fix, so the message is delivered again.
func (h *OrderFinalizedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	finalized, ok := event.(*stock.OrderFinalizedEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", stock.EventTypeOrderFinalized),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			stock.EventTypeOrderFinalized, event.EventType())
	}

	report, err := h.OnOrderFinalized(ctx, finalized.OrderReference, finalized.Lines)
	if err != nil {
		return err
	}
	if retryable := report.retryableFailures(); retryable > 0 {
		return fmt.Errorf("order %s: %d line(s) failed with a retryable error", report.OrderReference, retryable)
	}
	return nil
}

// OnOrderFinalized commits each line's reservation. A line whose reservation
// was already committed for this order counts as success. Every other
// failure is recorded on its line; the remaining lines are still attempted.
func (h *OrderFinalizedHandler) OnOrderFinalized(ctx context.Context, orderReference string, lines []stock.OrderLine) (*FinalizeReport, error) {
	orderReference = strings.TrimSpace(orderReference)
	if orderReference == "" {
		return nil, stock.ErrOrderReferenceRequired
	}
	if len(lines) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "Order has no lines")
	}

	report := &FinalizeReport{
		OrderReference: orderReference,
		Lines:          make([]FinalizeLineResult, 0, len(lines)),
	}

	for _, line := range lines {
		result := FinalizeLineResult{
			ReservationID: line.ReservationID,
			SKU:           line.SKU,
			Quantity:      line.Quantity,
		}

		outcome, err := h.committer.Commit(ctx, CommitCommand{
			ReservationID:  line.ReservationID,
			OrderReference: orderReference,
			SKU:            line.SKU,
			Quantity:       line.Quantity,
		})
		switch {
		case err == nil:
			result.Status = LineCommitted
			result.Late = outcome.Late
			report.Committed++
		case isCommittedFor(err, orderReference):
			result.Status = LineAlreadyCommitted
			report.AlreadyCommitted++
		default:
			result.Status = LineFailed
			result.Error = NewItemError(err)
			report.Failed++
			h.onLineFailed(ctx, orderReference, line, err)
		}
		report.Lines = append(report.Lines, result)
	}

	logFn := h.logger.Info
	if report.Failed > 0 {
		logFn = h.logger.Warn
	}
	logFn("Order finalized",
		zap.String("order_reference", orderReference),
		zap.Int("committed", report.Committed),
		zap.Int("already_committed", report.AlreadyCommitted),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// onLineFailed publishes FulfillmentFailed for lines the Manager did not
// already report: a hold that was released or committed to another order.
func (h *OrderFinalizedHandler) onLineFailed(ctx context.Context, orderReference string, line stock.OrderLine, err error) {
	h.logger.Warn("Order line not committed",
		zap.String("order_reference", orderReference),
		zap.String("reservation_id", line.ReservationID.String()),
		zap.String("sku", line.SKU.String()),
		zap.Error(err),
	)

	terminal, ok := stock.AsAlreadyTerminal(err)
	if !ok || h.eventPublisher == nil {
		return
	}
	reason := fmt.Sprintf("reservation already %s", terminal.Outcome.Status)
	event := stock.NewFulfillmentFailedEvent(orderReference, line, 0, reason)
	if pubErr := h.eventPublisher.Publish(ctx, event); pubErr != nil {
		h.logger.Warn("Failed to publish FulfillmentFailed event",
			zap.String("order_reference", orderReference),
			zap.Error(pubErr),
		)
	}
}

func isCommittedFor(err error, orderReference string) bool {
	terminal, ok := stock.AsAlreadyTerminal(err)
	return ok &&
		terminal.Outcome.Status == stock.ReservationStatusCommitted &&
		terminal.Outcome.OrderReference == orderReference
}

func (r *FinalizeReport) retryableFailures() int {
	count := 0
	for _, line := range r.Lines {
		if line.Status != LineFailed || line.Error == nil {
			continue
		}
		switch line.Error.Code {
		case stock.CodeBusy, "CONCURRENCY_CONFLICT", "INTERNAL_ERROR":
			count++
		}
	}
	return count
}

var _ shared.EventHandler = (*OrderFinalizedHandler)(nil)
