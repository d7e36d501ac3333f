package types

import pkgerrors "github.com/giftshop/cartsync/pkg/errors"

// Envelope wraps every successful cart API payload as {"data": ...}.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// APIError is the body of {"error": ...}. Code is one of the pkg/errors codes.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// Typed rebuilds the server's typed error on the client side. An envelope
// without a code yields nil.
func (e ErrorEnvelope) Typed() *pkgerrors.Error {
	if e.Error.Code == "" {
		return nil
	}
	typed := pkgerrors.New(pkgerrors.Code(e.Error.Code), e.Error.Message)
	if e.Error.Details != nil {
		typed = typed.WithDetails(e.Error.Details)
	}
	return typed
}
