package reports

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockflow-backend/api/responses"
	"github.com/angelmondragon/stockflow-backend/api/validators"
	internalreports "github.com/angelmondragon/stockflow-backend/internal/reports"
	"github.com/angelmondragon/stockflow-backend/pkg/logger"
)

// Reader serves the cached derived reports.
type Reader interface {
	StockReport(ctx context.Context, productID uuid.UUID) (*internalreports.StockReport, error)
	CustomerDebtReport(ctx context.Context, customerID uuid.UUID) (*internalreports.CustomerDebtReport, error)
}

func Stock(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.StockReport(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func CustomerDebt(svc Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, err := validators.ParseUUIDParam(r, "customerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.CustomerDebtReport(r.Context(), customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
