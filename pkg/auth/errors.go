package auth

import "fmt"

// FailureKind classifies why a login attempt failed.
type FailureKind int

const (
	Connectivity FailureKind = iota
	Unavailable
	InvalidCredentials
	BadRequest
	Unknown
)

// User-facing messages for each failure kind.
const (
	ConnectivityMessage       = "Unable to connect to authentication service. Please check your connection and try again."
	UnavailableMessage        = "Authentication service is temporarily unavailable. Please try again later."
	InvalidCredentialsMessage = "Invalid username or password. Please try again."
	BadRequestMessage         = "Invalid request. Please check your credentials."
	UnknownMessage            = "Login failed. Please try again or contact support if the problem persists."
)

// LoginError is returned by Login. Its message is meant to be shown as is.
type LoginError struct {
	Kind    FailureKind
	Status  int
	Message string
	Err     error
}

func (e *LoginError) Error() string { return e.Message }

func (e *LoginError) Unwrap() error { return e.Err }

func (e *LoginError) String() string {
	return fmt.Sprintf("login failed (kind=%d status=%d): %s", e.Kind, e.Status, e.Message)
}

// classify maps an HTTP status and error body to a LoginError.
func classify(status int, body serverMessage) *LoginError {
	switch {
	case status >= 500:
		return &LoginError{Kind: Unavailable, Status: status, Message: UnavailableMessage}
	case status == 401 || status == 403:
		return &LoginError{Kind: InvalidCredentials, Status: status, Message: InvalidCredentialsMessage}
	case status == 400:
		msg := BadRequestMessage
		if body.Error != "" {
			msg = body.Error
		} else if body.Message != "" {
			msg = body.Message
		}
		return &LoginError{Kind: BadRequest, Status: status, Message: msg}
	default:
		return &LoginError{Kind: Unknown, Status: status, Message: UnknownMessage}
	}
}

type serverMessage struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
