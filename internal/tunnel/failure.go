package tunnel

import "fmt"

// Code classifies a connect failure for the API surface.
type Code string

const (
	CodeInvalidEnvironment   Code = "InvalidEnvironment"
	CodeAuthenticationFailed Code = "AuthenticationFailed"
	CodeStatusQueryFailed    Code = "StatusQueryFailed"
	CodeNoPortAvailable      Code = "NoPortAvailable"
	CodeTunnelLaunchFailed   Code = "TunnelLaunchFailed"
)

// Failure is a classified tunnel error with a human-readable diagnostic.
type Failure struct {
	Code   Code
	Detail string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Detail)
}
