package recovery

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/quangdang46/shipment-tracker/shared/logging"
	"github.com/quangdang46/shipment-tracker/shared/monitoring"
)

// PanicHandler handles panic recovery
type PanicHandler struct {
	logger *logging.Logger
}

// NewPanicHandler creates a new panic handler
func NewPanicHandler(logger *logging.Logger) *PanicHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &PanicHandler{logger: logger}
}

// HTTPMiddleware converts handler panics into 500 responses
func (ph *PanicHandler) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				ph.handle(rec, r.Method+" "+r.URL.Path)
				http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Go runs fn on a new goroutine, recovering and reporting any panic
func (ph *PanicHandler) Go(name string, fn func()) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ph.handle(rec, name)
			}
		}()
		fn()
	}()
}

func (ph *PanicHandler) handle(recovered interface{}, where string) {
	ph.logger.WithFields(map[string]interface{}{
		"where": where,
		"panic": fmt.Sprint(recovered),
		"stack": string(debug.Stack()),
	}).Error("Recovered from panic")

	monitoring.CaptureError(fmt.Errorf("panic: %v", recovered), map[string]string{"where": where}, nil)
}
