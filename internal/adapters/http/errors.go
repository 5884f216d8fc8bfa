package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"previa/internal/ingest"
	"previa/internal/ports"
	"previa/internal/services/alertbrowser"
	chatsvc "previa/internal/services/chat"
	"previa/internal/services/entitytable"
	"previa/internal/services/scanner"
	"previa/internal/services/watchlists"
)

func statusFor(err error) int {
	var (
		re *runtimeError
		pe *InvalidParamFormatError
	)
	switch {
	case errors.As(err, &re):
		return re.code
	case errors.As(err, &pe):
		return http.StatusBadRequest
	case errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scanner.ErrUnsupportedFile),
		errors.Is(err, scanner.ErrEmptyFile),
		errors.Is(err, ingest.ErrUnsupportedFile),
		errors.Is(err, ingest.ErrNoEntities),
		errors.Is(err, ingest.ErrMissingColumns),
		errors.Is(err, alertbrowser.ErrInvalidExpr),
		errors.Is(err, entitytable.ErrInvalidTag),
		errors.Is(err, watchlists.ErrNoEntities):
		return http.StatusBadRequest
	case errors.Is(err, scanner.ErrNotReady),
		errors.Is(err, entitytable.ErrRowBusy),
		errors.Is(err, chatsvc.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
