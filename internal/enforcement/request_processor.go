/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package enforcement

import (
	"github.com/acronis/go-validatorkit/ratelimit"
)

// Params contains data of a rejected request.
type Params struct {
	Key                   string
	Policy                ratelimit.Policy
	SecondsToWaitForRetry int64
}

// RequestHandler abstracts the common operations for both HTTP and gRPC requests.
type RequestHandler interface {
	// GetTarget returns the rate limiting key and the policy of the request.
	// If bypass is true, the request is executed without any check.
	GetTarget() (key string, policy ratelimit.Policy, bypass bool)

	// Execute processes the actual request.
	Execute() error

	// OnReject handles request rejection when rate limit is exceeded.
	OnReject(params Params) error
}

// RequestProcessor handles the common rate limiting logic for any request type.
type RequestProcessor struct {
	checker ratelimit.Checker
}

// NewRequestProcessor creates a new generic request processor.
func NewRequestProcessor(checker ratelimit.Checker) *RequestProcessor {
	return &RequestProcessor{checker: checker}
}

// ProcessRequest contains the shared rate limiting logic.
func (p *RequestProcessor) ProcessRequest(rh RequestHandler) error {
	key, policy, bypass := rh.GetTarget()
	if bypass {
		return rh.Execute()
	}

	decision := p.checker.TryConsume(key, policy)
	if decision.Proceed {
		return rh.Execute()
	}
	return rh.OnReject(Params{Key: key, Policy: policy, SecondsToWaitForRetry: decision.SecondsToWaitForRetry})
}
