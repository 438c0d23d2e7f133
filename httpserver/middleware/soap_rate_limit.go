/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/acronis/go-validatorkit/internal/enforcement"
	"github.com/acronis/go-validatorkit/log"
	"github.com/acronis/go-validatorkit/ratelimit"
)

// DefaultSOAPOperationName is the name of the SOAP operation that is rate limited by default.
const DefaultSOAPOperationName = "validate"

const soapEnvelopeNamespace = "http://schemas.xmlsoap.org/soap/envelope/"

// SOAPRateLimitOpts represents an options for the SOAPRateLimit middleware.
type SOAPRateLimitOpts struct {
	// OperationName must be equal to the local name of the first element inside SOAP Body.
	// DefaultSOAPOperationName is used if it's empty.
	OperationName string

	// Logger is used when there is no request-scoped logger in the context.
	Logger log.FieldLogger
}

type soapRateLimitHandler struct {
	next          http.Handler
	processor     *enforcement.RequestProcessor
	keyGen        *ratelimit.KeyGenerator
	operationName string
	logger        log.FieldLogger
}

// SOAPRateLimit is a middleware that enforces the validation rate limit for SOAP (1.1) requests.
// The envelope is decoded only up to the first element inside SOAP Body, the whole body is still available
// for the next handler. Only the configured operation is checked, all other requests (including malformed XML)
// are passed through. A rejected request gets a SOAP Fault response.
// The size of the decoded part should be bounded by RequestBodyLimit applied before this middleware.
func SOAPRateLimit(
	checker ratelimit.Checker, keyGen *ratelimit.KeyGenerator, opts SOAPRateLimitOpts,
) func(next http.Handler) http.Handler {
	operationName := opts.OperationName
	if operationName == "" {
		operationName = DefaultSOAPOperationName
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	processor := enforcement.NewRequestProcessor(checker)
	return func(next http.Handler) http.Handler {
		return &soapRateLimitHandler{
			next:          next,
			processor:     processor,
			keyGen:        keyGen,
			operationName: operationName,
			logger:        logger,
		}
	}
}

func (h *soapRateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	logger := GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = h.logger
	}

	operation, err := readSOAPOperation(r)
	if err != nil {
		logger.Debug("SOAP operation cannot be determined, rate limit is not applied", log.Error(err))
		h.next.ServeHTTP(rw, r)
		return
	}
	if operation != h.operationName {
		h.next.ServeHTTP(rw, r)
		return
	}

	var evaluated bool
	if r, evaluated = markRateLimitEvaluated(r); evaluated {
		h.next.ServeHTTP(rw, r)
		return
	}

	requestHandler := &soapRateLimitRequestHandler{rw: rw, r: r, logger: logger, parent: h}
	_ = h.processor.ProcessRequest(requestHandler) // Error is always nil, as it is handled in the soapRateLimitRequestHandler methods.
}

// readSOAPOperation decodes the body up to the first element inside SOAP Body.
// Consumed bytes are replayed to the next handler followed by the unread rest of the body.
func readSOAPOperation(r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", errors.New("request body is empty")
	}
	consumed := &bytes.Buffer{}
	operation, err := parseSOAPOperation(io.TeeReader(r.Body, consumed))
	r.Body = &restoredBody{Reader: io.MultiReader(consumed, r.Body), Closer: r.Body}
	return operation, err
}

type restoredBody struct {
	io.Reader
	io.Closer
}

// parseSOAPOperation returns the local name of the first element inside the SOAP Body.
func parseSOAPOperation(reader io.Reader) (string, error) {
	dec := xml.NewDecoder(reader)
	depth := 0
	inBody := false
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", errors.New("SOAP Body is not found")
			}
			return "", fmt.Errorf("parse SOAP envelope: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 1 && t.Name.Local != "Envelope":
				return "", fmt.Errorf("unexpected root element %q", t.Name.Local)
			case depth == 2 && t.Name.Local == "Body":
				inBody = true
			case depth == 3 && inBody:
				return t.Name.Local, nil
			}
		case xml.EndElement:
			if depth == 2 && inBody {
				return "", errors.New("SOAP Body is empty")
			}
			depth--
		}
	}
}

type soapRateLimitRequestHandler struct {
	rw     http.ResponseWriter
	r      *http.Request
	logger log.FieldLogger
	parent *soapRateLimitHandler
}

func (h *soapRateLimitRequestHandler) GetTarget() (key string, policy ratelimit.Policy, bypass bool) {
	key, bypass = h.parent.keyGen.Key(ratelimit.NewHTTPClientRequest(h.r), ratelimit.PolicySOAPValidate, h.logger)
	return key, ratelimit.PolicySOAPValidate, bypass
}

func (h *soapRateLimitRequestHandler) Execute() error {
	h.parent.next.ServeHTTP(h.rw, h.r)
	return nil
}

func (h *soapRateLimitRequestHandler) OnReject(params enforcement.Params) error {
	RespondSOAPFault(h.rw, "soap:Server", ratelimit.RejectMessage(params.SecondsToWaitForRetry), h.logger)
	return nil
}

type soapFaultEnvelope struct {
	XMLName   xml.Name `xml:"soap:Envelope"`
	Namespace string   `xml:"xmlns:soap,attr"`
	Body      struct {
		Fault soapFault `xml:"soap:Fault"`
	} `xml:"soap:Body"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

// RespondSOAPFault sends SOAP 1.1 Fault with 500 HTTP status code.
func RespondSOAPFault(rw http.ResponseWriter, faultCode, faultString string, logger log.FieldLogger) {
	envelope := soapFaultEnvelope{Namespace: soapEnvelopeNamespace}
	envelope.Body.Fault = soapFault{Code: faultCode, String: faultString}
	respBody, err := xml.Marshal(envelope)
	if err != nil {
		if logger != nil {
			logger.Error("error while marshaling SOAP fault", log.Error(err))
		}
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	respBody = append([]byte(xml.Header), respBody...)

	rw.Header().Set("Content-Type", "text/xml; charset=utf-8")
	rw.Header().Set("Content-Length", strconv.Itoa(len(respBody)))
	rw.WriteHeader(http.StatusInternalServerError)
	if _, err = rw.Write(respBody); err != nil && logger != nil {
		logger.Error("error while sending SOAP fault", log.Error(err))
	}
}
