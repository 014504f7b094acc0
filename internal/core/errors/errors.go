package errors

const (
	HttpInternalError     = "internal_error"
	HttpInvalidQueryError = "invalid_query"
	HttpEmptyWindowError  = "empty_window"

	HttpHistoryUnavailableError = "history_unavailable"
)

// ErrorResponse is the JSON body returned by the stats endpoints on failure.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
