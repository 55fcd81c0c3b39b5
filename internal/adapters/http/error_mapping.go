package httpadapter

import (
	"net/http"

	"github.com/lexflow/case-analysis/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrAlreadyProcessing):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrBudgetExceeded):
		return http.StatusTooManyRequests
	case domain.IsKind(err, domain.ErrModelTransient),
		domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
