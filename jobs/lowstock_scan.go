package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/seastock/seastock/internal/catalog"
	"github.com/seastock/seastock/internal/observability"
)

// LowStockLister reads products at or below their low-stock threshold.
type LowStockLister interface {
	ListLowStock(ctx context.Context) ([]catalog.Product, error)
}

// NewLowStockScanHandler returns the handler for TaskLowStockScan. It logs
// one summary line and refreshes the low-stock gauge; metrics may be nil.
func NewLowStockScanHandler(logger *slog.Logger, products LowStockLister, metrics *observability.Metrics) asynq.HandlerFunc {
	printer := message.NewPrinter(language.English)
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LowStockScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		low, err := products.ListLowStock(ctx)
		if err != nil {
			return err
		}
		metrics.SetLowStockProducts(len(low))
		for _, p := range low {
			logger.Warn("product low on stock",
				slog.Int64("product_id", p.ID),
				slog.String("code", p.Code),
				slog.Int64("boxes", p.QuantityBox),
				slog.String("loose_kg", p.QuantityKg.String()),
			)
		}
		logger.Info("low-stock scan finished",
			slog.String("summary", printer.Sprintf("%d products at or below threshold", len(low))))
		return nil
	}
}
