/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Error is the body of the "error" object in JSON error responses.
type Error struct {
	Domain  string                 `json:"domain"`
	Code    string                 `json:"code"`
	Message string                 `json:"message,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Codes and messages of errors returned by the server itself. Services may override them.
var (
	ErrCodeInternal            = "internalError"
	ErrMessageInternal         = "Internal error."
	ErrCodeNotFound            = "notFound"
	ErrMessageNotFound         = "Not found."
	ErrCodeMethodNotAllowed    = "methodNotAllowed"
	ErrMessageMethodNotAllowed = "Method not allowed."
)

// NewError creates an Error.
func NewError(domain, code, message string) *Error {
	return &Error{Domain: domain, Code: code, Message: message}
}

// NewInternalError creates an Error with ErrCodeInternal and ErrMessageInternal.
func NewInternalError(domain string) *Error {
	return &Error{Domain: domain, Code: ErrCodeInternal, Message: ErrMessageInternal}
}

// NewErrorForHTTPCode creates an Error whose code is the camel-cased HTTP status text,
// e.g. 429 gives "tooManyRequests".
func NewErrorForHTTPCode(domain string, httpCode int, message string) *Error {
	return &Error{Domain: domain, Code: httpCode2ErrorCode(httpCode), Message: message}
}

// AddContext sets a context field and returns the same Error for chaining.
func (e *Error) AddContext(field string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = map[string]interface{}{}
	}
	e.Context[field] = value
	return e
}

func httpCode2ErrorCode(httpCode int) string {
	if httpCode == http.StatusInternalServerError {
		return ErrCodeInternal
	}
	words := strings.Fields(http.StatusText(httpCode))
	for i, word := range words {
		word = strings.ToLower(word)
		if i != 0 {
			r, size := utf8.DecodeRuneInString(word)
			word = string(unicode.ToUpper(r)) + word[size:]
		}
		words[i] = word
	}
	return strings.Join(words, "")
}
