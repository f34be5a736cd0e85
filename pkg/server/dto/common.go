package dto

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// Error codes returned in ErrorResponse.Error.
const (
	ErrInvalidRequest = "invalid_request"
	ErrExtraction     = "extraction_failed"
	ErrNotReady       = "not_ready"
)
