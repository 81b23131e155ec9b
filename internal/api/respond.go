package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

// envelope is the uniform response shape for successful requests.
type envelope struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
}

type errorEnvelope struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Success    bool     `json:"success"`
	Errors     []string `json:"errors"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data interface{}, message string) {
	writeJSON(w, status, envelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < http.StatusBadRequest,
	})
}

func writeError(w http.ResponseWriter, err error) {
	reqErr := translateError(err)
	details := reqErr.Details
	if details == nil {
		details = []string{}
	}
	writeJSON(w, reqErr.Status, errorEnvelope{
		StatusCode: reqErr.Status,
		Message:    reqErr.Message,
		Success:    false,
		Errors:     details,
	})
}

// WriteError is an exported helper for returning JSON API errors.
func WriteError(w http.ResponseWriter, err error) {
	writeError(w, err)
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, newRequestError(http.StatusMethodNotAllowed, "method not allowed"))
}

func decodeJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}
