package fetch

import "fmt"

// Kind tells transport failures apart from non-success responses.
type Kind string

const (
	KindStatus    Kind = "status"
	KindTransport Kind = "transport"
	KindDecode    Kind = "decode"
)

// FetchError is returned by FetchTickets for any failed read.
type FetchError struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("fetch tickets: HTTP %d", e.Status)
	case KindDecode:
		return fmt.Sprintf("fetch tickets: invalid response: %v", e.Err)
	default:
		return fmt.Sprintf("fetch tickets: transport failure: %v", e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// ClearError is returned by Clear for any failed clear request.
type ClearError struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *ClearError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("clear tickets: HTTP %d", e.Status)
	}
	return fmt.Sprintf("clear tickets: transport failure: %v", e.Err)
}

func (e *ClearError) Unwrap() error { return e.Err }
