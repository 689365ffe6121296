package handlers

import (
	"encoding/json"
	"net/http"
)

// Provisioning status codes carried in the response envelope. Every
// provisioning endpoint answers HTTP 200 with one of these domain codes;
// per-endpoint codes in the 101-106 range are passed literally at the call
// site since their meaning differs between operations.
const (
	StatusOK             = 100
	StatusServerError    = 996
	StatusUnauthorized   = 997
	StatusNotFound       = 998
	StatusPasswordPolicy = 403
)

// Meta is the status block of a provisioning response envelope.
type Meta struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statuscode"`
	Message    string `json:"message,omitempty"`
}

// Envelope wraps every provisioning response.
type Envelope struct {
	Meta Meta        `json:"meta"`
	Data interface{} `json:"data,omitempty"`
}

// writeEnvelope serializes an envelope with the given domain status code.
// The HTTP status is always 200; clients dispatch on meta.statuscode.
func writeEnvelope(w http.ResponseWriter, code int, message string, data interface{}) {
	status := "failure"
	if code == StatusOK {
		status = "ok"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // nothing to do if the client went away mid-write
	json.NewEncoder(w).Encode(Envelope{
		Meta: Meta{Status: status, StatusCode: code, Message: message},
		Data: data,
	})
}

// writeOK writes a success envelope with an optional data payload.
func writeOK(w http.ResponseWriter, data interface{}) {
	writeEnvelope(w, StatusOK, "", data)
}

// writeError writes a failure envelope with the given domain code and message.
func writeError(w http.ResponseWriter, code int, message string) {
	writeEnvelope(w, code, message, nil)
}
