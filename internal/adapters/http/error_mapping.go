package httpadapter

import (
	"net/http"

	"github.com/kirillkom/second-brain/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrScenarioNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrProviderUnavailable), domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
