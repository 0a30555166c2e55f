package shield

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// PanicRenderer writes the response for a recovered panic.
type PanicRenderer func(w http.ResponseWriter, r *http.Request, msg string)

// Recover turns a handler panic into a 500 response rendered by render and
// logs it with the stack. http.ErrAbortHandler is re-raised.
func Recover(render PanicRenderer) func(http.Handler) http.Handler {
	if render == nil {
		render = renderPanic
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				GetLogger(r.Context()).Error("handler panic",
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				render(w, r, fmt.Sprint(rec))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func renderPanic(w http.ResponseWriter, _ *http.Request, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
