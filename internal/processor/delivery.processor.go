package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gateway "github.com/nimasrn/congregation-messenger/internal/gateways"
	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/nimasrn/congregation-messenger/internal/queue"
	"github.com/nimasrn/congregation-messenger/pkg/logger"
	"github.com/nimasrn/congregation-messenger/pkg/prom"
)

var ErrMalformedReport = errors.New("malformed delivery report")

type DeliveryReportRepository interface {
	Create(ctx context.Context, dr *model.DeliveryReport) (*model.DeliveryReport, error)
}

type Idempotency interface {
	AcquireProcessingLock(ctx context.Context, key string) (*ProcessingContext, error)
	MarkSuccess(ctx context.Context, pc *ProcessingContext) error
	MarkFailure(ctx context.Context, pc *ProcessingContext, reason error) error
	ReleaseLock(ctx context.Context, pc *ProcessingContext) error
}

// DeliveryReportProcessor stores the webhook items queued by the API. Each
// item is written at most once, however often the gateway re-delivers it.
type DeliveryReportProcessor struct {
	reports     DeliveryReportRepository
	idempotency Idempotency
	now         func() time.Time
}

func NewDeliveryReportProcessor(reports DeliveryReportRepository, idempotency Idempotency) *DeliveryReportProcessor {
	return &DeliveryReportProcessor{
		reports:     reports,
		idempotency: idempotency,
		now:         time.Now,
	}
}

func (p *DeliveryReportProcessor) GetType() string {
	return "delivery_report"
}

func (p *DeliveryReportProcessor) Process(ctx context.Context, msg *queue.Message) error {
	var item gateway.DeliveryItem
	if err := json.Unmarshal(msg.Data, &item); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedReport, err)
	}
	if item.MessageID == "" {
		// nothing to attach it to, retrying will not help
		logger.Warn("delivery report without message id dropped", "queue_id", msg.ID)
		return nil
	}

	key := item.Key()
	procCtx, err := p.idempotency.AcquireProcessingLock(ctx, key)
	switch {
	case errors.Is(err, ErrAlreadyProcessed):
		logger.Info("delivery report already stored, skipping", "key", key)
		return nil
	case errors.Is(err, ErrMaxRetriesExceeded):
		logger.Error("delivery report dropped after max retries", "key", key)
		return nil
	case errors.Is(err, ErrLockAcquireFailed):
		return fmt.Errorf("report %s is being processed elsewhere: %w", key, err)
	case err != nil:
		return err
	}
	defer p.idempotency.ReleaseLock(ctx, procCtx)

	status := strings.ToLower(strings.TrimSpace(item.Status))
	report := &model.DeliveryReport{
		MessageID:  item.MessageID,
		Phone:      item.Phone,
		Status:     status,
		Error:      item.Error,
		ReportedAt: item.ReportedAt(),
		ReceivedAt: p.now().UTC(),
	}
	if _, err := p.reports.Create(ctx, report); err != nil {
		if markErr := p.idempotency.MarkFailure(ctx, procCtx, err); markErr != nil {
			logger.Error("failed to mark report failure", "key", key, "error", markErr)
		}
		return fmt.Errorf("failed to store delivery report: %w", err)
	}

	if err := p.idempotency.MarkSuccess(ctx, procCtx); err != nil {
		// stored already; a duplicate row is preferable to losing the report
		logger.Error("failed to mark report processed", "key", key, "error", err)
	}
	prom.IncDeliveryReport(status)
	logger.Info("delivery report stored", "message_id", item.MessageID, "phone", item.Phone, "status", status, "retry", procCtx.IsRetry)
	return nil
}
