/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"strconv"
	"strings"
	"time"

	"github.com/acronis/go-validatorkit/log"
)

// DefaultWindow is the length of the window after which a bucket is refilled.
const DefaultWindow = time.Minute

// Bandwidth describes the quota of a policy: Capacity requests per Window.
// The bucket is refilled completely at every window boundary.
type Bandwidth struct {
	Capacity int64
	Window   time.Duration
}

// Bandwidths holds the effective quota of every policy.
type Bandwidths [policiesNum]Bandwidth

// Get returns the bandwidth of the policy.
// For an unknown policy the zero Bandwidth is returned.
func (bws *Bandwidths) Get(policy Policy) Bandwidth {
	if !policy.valid() {
		return Bandwidth{}
	}
	return bws[policy]
}

// ResolveBandwidths builds the effective quota of every policy from the configured capacities.
// Capacity keys are matched case-insensitively.
// A missing or non-positive capacity is reported with a warning and replaced by the policy default,
// keys that name no known policy are reported and ignored. It never fails.
func ResolveBandwidths(capacity map[string]int, logger log.FieldLogger) Bandwidths {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	configured := make(map[Policy]int, len(capacity))
	for key, val := range capacity {
		policy, err := ParsePolicy(key)
		if err != nil {
			logger.Warn("unknown rate limit capacity key is ignored", log.String("key", key))
			continue
		}
		configured[policy] = val
	}

	var bws Bandwidths
	for _, policy := range Policies() {
		capacityVal := policy.DefaultCapacity()
		val, ok := configured[policy]
		switch {
		case !ok:
			logger.Warn("missing rate limit capacity, default limit will be applied",
				log.String("policy", policy.ConfigurationKey()),
				log.Int64("default_capacity", policy.DefaultCapacity()))
		case val <= 0:
			logger.Warn("invalid rate limit capacity (must be a positive integer), default limit will be applied",
				log.String("policy", policy.ConfigurationKey()),
				log.Int("capacity", val),
				log.Int64("default_capacity", policy.DefaultCapacity()))
		default:
			capacityVal = int64(val)
		}
		bws[policy] = Bandwidth{Capacity: capacityVal, Window: DefaultWindow}
	}
	return bws
}

func (bws *Bandwidths) capacitiesString() string {
	var sb strings.Builder
	for _, policy := range Policies() {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(policy.ConfigurationKey())
		sb.WriteString("=")
		sb.WriteString(strconv.FormatInt(bws[policy].Capacity, 10))
	}
	return sb.String()
}
