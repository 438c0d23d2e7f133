/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"strings"
)

// Policy identifies a class of protected validation operations.
// The set of policies is closed: every value is declared below.
type Policy int

// Supported policies.
const (
	PolicyUIValidate Policy = iota
	PolicyRESTValidate
	PolicyRESTValidateMultiple
	PolicySOAPValidate

	policiesNum = iota
)

type policyAttrs struct {
	configurationKey string
	defaultCapacity  int64
}

var policyCatalog = [policiesNum]policyAttrs{
	PolicyUIValidate:           {configurationKey: "uiValidate", defaultCapacity: 60},
	PolicyRESTValidate:         {configurationKey: "restValidate", defaultCapacity: 60},
	PolicyRESTValidateMultiple: {configurationKey: "restValidateMultiple", defaultCapacity: 30},
	PolicySOAPValidate:         {configurationKey: "soapValidate", defaultCapacity: 60},
}

// Policies returns all known policies in declaration order.
func Policies() []Policy {
	policies := make([]Policy, 0, policiesNum)
	for p := Policy(0); p < policiesNum; p++ {
		policies = append(policies, p)
	}
	return policies
}

// ParsePolicy returns the policy with the given configuration key. Matching is case-insensitive.
func ParsePolicy(key string) (Policy, error) {
	key = strings.TrimSpace(key)
	for p := Policy(0); p < policiesNum; p++ {
		if strings.EqualFold(policyCatalog[p].configurationKey, key) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown rate limit policy %q", key)
}

// ConfigurationKey returns the key under which the policy capacity is configured.
// It is also used as a part of the rate limiting key.
func (p Policy) ConfigurationKey() string {
	if !p.valid() {
		return ""
	}
	return policyCatalog[p].configurationKey
}

// DefaultCapacity returns the number of requests per window allowed when no valid capacity is configured.
func (p Policy) DefaultCapacity() int64 {
	if !p.valid() {
		return 0
	}
	return policyCatalog[p].defaultCapacity
}

func (p Policy) String() string {
	if !p.valid() {
		return fmt.Sprintf("Policy(%d)", int(p))
	}
	return policyCatalog[p].configurationKey
}

// MarshalText implements the encoding.TextMarshaler interface.
func (p Policy) MarshalText() ([]byte, error) {
	if !p.valid() {
		return nil, fmt.Errorf("unknown rate limit policy %d", int(p))
	}
	return []byte(policyCatalog[p].configurationKey), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (p *Policy) UnmarshalText(text []byte) (err error) {
	*p, err = ParsePolicy(string(text))
	return
}

func (p Policy) valid() bool {
	return p >= 0 && p < policiesNum
}
