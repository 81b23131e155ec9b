package server

import (
	"net/http"

	"github.com/Abhisheksantra28/Streamfinity/internal/api"
)

// writeMiddlewareError emits the API error envelope for failures raised before
// a request reaches its handler, so clients see one response shape throughout.
func writeMiddlewareError(w http.ResponseWriter, status int, message string) {
	api.WriteError(w, &api.RequestError{Status: status, Message: message})
}
