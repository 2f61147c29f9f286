package errors

// ErrorInfo is the wire shape of a failure
type ErrorInfo struct {
	Code    ErrorCategory `json:"code"`
	Message string        `json:"message"`
	Details Context       `json:"details,omitempty"`
}

// Result is the envelope handed to callers that cannot consume Go errors,
// such as a UI bridge or the CLI's JSON output.
type Result[T any] struct {
	Success bool       `json:"success"`
	Data    T          `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ResultOf builds a Result from a conventional (value, error) pair
func ResultOf[T any](data T, err error) Result[T] {
	if err == nil {
		return Result[T]{Success: true, Data: data}
	}

	rerr := WrapIfNeeded(err, "operation")
	info := &ErrorInfo{
		Code:    rerr.Taxonomy(),
		Message: rerr.Message,
		Details: rerr.Context,
	}
	// Internal causes are not shown to users.
	if rerr.Retryable() {
		info.Message = "Something went wrong. Please try again."
	}
	return Result[T]{Error: info}
}
