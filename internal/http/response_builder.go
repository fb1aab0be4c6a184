// Package http exposes the reconciliation and the cash entry form as a JSON
// API for the browser front-end.
//
// This file implements the Builder Pattern for constructing JSON responses.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"caisse/internal/core"
	"caisse/internal/reconcile"
	"caisse/internal/services"
	"caisse/internal/sources"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorBody is the JSON body of every failed request. Error is the status
// string shown to the user.
type ErrorBody struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

// FieldError is one rejected form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(ErrorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError(allowedMethods string) *ResponseBuilder {
	b := ErrorResponse(http.StatusMethodNotAllowed, "Méthode non autorisée")
	if allowedMethods != "" {
		b.Header("Allow", allowedMethods)
	}
	return b
}

// FromError maps a service error to its status code and user message.
func FromError(err error) *ResponseBuilder {
	body := ErrorBody{Error: services.StatusMessage(err)}

	var verrs core.ValidationErrors
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verrs):
		for _, v := range verrs {
			body.Fields = append(body.Fields, FieldError{Field: v.Field, Message: v.Message})
		}
		return NewResponse().Status(http.StatusUnprocessableEntity).JSON(body)
	case errors.As(err, &verr):
		body.Fields = []FieldError{{Field: verr.Field, Message: verr.Message}}
		return NewResponse().Status(http.StatusUnprocessableEntity).JSON(body)
	}

	return NewResponse().Status(statusCode(err)).JSON(body)
}

func statusCode(err error) int {
	var pe *sources.PersistenceError
	switch {
	case errors.Is(err, core.ErrMissingIdentifier), errors.Is(err, reconcile.ErrInvalidPeriod),
		errors.Is(err, reconcile.ErrInvalidSort):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrStaleView):
		return http.StatusConflict
	case errors.Is(err, sources.ErrNetwork), errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
