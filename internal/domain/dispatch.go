package domain

import "time"

// Error kinds reported in DispatchResult.ErrorKind.
const (
	ErrorKindNone          = ""
	ErrorKindDisabled      = "disabled"
	ErrorKindNotConfigured = "not_configured"
	ErrorKindDuplicate     = "duplicate"
	ErrorKindCircuitOpen   = "circuit_open"
	ErrorKindEncoding      = "encoding"
	ErrorKindTransport     = "transport"
	ErrorKindPermission    = "permission"
	ErrorKindAuth          = "auth"
	ErrorKindInvalid       = "invalid"
	ErrorKindThrottled     = "throttled"
	ErrorKindRemote        = "remote"
	ErrorKindDropped       = "dropped"
)

// DispatchResult is the outcome of one send to the Conversions API. Failures
// are reported here and never raised to the caller.
type DispatchResult struct {
	Success        bool                `json:"success"`
	EventID        string              `json:"event_id,omitempty"`
	HTTPStatus     int                 `json:"http_status,omitempty"`
	ErrorKind      string              `json:"error_kind,omitempty"`
	RemoteCode     int                 `json:"remote_code,omitempty"`
	RemoteMessage  string              `json:"remote_message,omitempty"`
	EventsReceived int                 `json:"events_received,omitempty"`
	Verification   *VerificationResult `json:"verification,omitempty"`
}

// VerificationResult is the outcome of a connection test or fallback probe.
type VerificationResult struct {
	Success bool   `json:"success"`
	Method  string `json:"method"`
	Message string `json:"message"`
}

// DispatchAttempt is one row of the dispatch log.
type DispatchAttempt struct {
	ID             string    `json:"id"`
	EventID        string    `json:"event_id"`
	EventName      string    `json:"event_name"`
	PixelID        string    `json:"pixel_id"`
	Status         string    `json:"status"`
	HTTPStatusCode *int      `json:"http_status_code,omitempty"`
	ErrorKind      *string   `json:"error_kind,omitempty"`
	RemoteMessage  *string   `json:"remote_message,omitempty"`
	ResponseTimeMs int       `json:"response_time_ms"`
	CreatedAt      time.Time `json:"created_at"`
}
