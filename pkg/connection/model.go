package connection

import "fmt"

// RPCError is returned when the endpoint answers with a non-2xx status.
type RPCError struct {
	Code        int    `json:"code"`
	Message     string `json:"message,omitempty"`
	Description string `json:"description,omitempty"`
}

func (r RPCError) Error() string {
	if r.Description != "" {
		return fmt.Sprintf("endpoint error %d: %s", r.Code, r.Description)
	}
	return fmt.Sprintf("endpoint error %d: %s", r.Code, r.Message)
}

func (r *RPCError) Is(target error) bool {
	if target == nil {
		return r == nil
	}

	_, ok := target.(*RPCError)
	return ok
}

// Temporary reports whether retrying the call may succeed.
func (r *RPCError) Temporary() bool {
	return r.Code >= 500 || r.Code == 429
}

// ErrorResponse is the body the endpoint sends along with an error status.
type ErrorResponse struct {
	Error *RPCError `json:"error,omitempty"`
}
