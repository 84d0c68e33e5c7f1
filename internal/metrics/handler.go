package metrics

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinHandler serves the text snapshot from a gin route.
func GinHandler(reg *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(reg.Snapshot()))
	}
}

// HTTPHandler serves the text snapshot from a plain http mux, used by
// the worker service's side listener.
func HTTPHandler(reg *Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(reg.Snapshot()))
	})
}
