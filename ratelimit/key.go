/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"net/netip"
	"strings"

	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-validatorkit/log"
)

// KeySeparator separates the client address and the policy configuration key in a rate limiting key.
const KeySeparator = "|"

// KeyGenerator builds rate limiting keys of the form "normalizedAddress|policyKey".
type KeyGenerator struct {
	ipHeader          string
	excludedAddresses []func(s string) bool
	logger            log.FieldLogger
}

// KeyGeneratorOpts represents options for the KeyGenerator.
type KeyGeneratorOpts struct {
	// IPHeader is a name of the header that carries the original client address.
	// If it is empty, the transport remote address is always used.
	IPHeader string

	// ExcludedAddresses is a list of glob patterns matched against the normalized client address.
	ExcludedAddresses []string

	// Logger is used for warnings when no request-scoped logger is passed.
	Logger log.FieldLogger
}

// NewKeyGenerator creates a new KeyGenerator.
func NewKeyGenerator(opts KeyGeneratorOpts) *KeyGenerator {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	excluded := make([]func(s string) bool, 0, len(opts.ExcludedAddresses))
	for _, pattern := range opts.ExcludedAddresses {
		if pattern = strings.TrimSpace(pattern); pattern != "" {
			excluded = append(excluded, glob.Compile(pattern))
		}
	}
	return &KeyGenerator{
		ipHeader:          strings.TrimSpace(opts.IPHeader),
		excludedAddresses: excluded,
		logger:            logger,
	}
}

// NewKeyGeneratorFromConfig creates a new KeyGenerator using the rate limiting configuration.
func NewKeyGeneratorFromConfig(cfg *Config, logger log.FieldLogger) *KeyGenerator {
	return NewKeyGenerator(KeyGeneratorOpts{
		IPHeader:          cfg.IPHeader,
		ExcludedAddresses: cfg.ExcludedAddresses,
		Logger:            logger,
	})
}

// Key returns the rate limiting key for the request and the policy.
// If the client address matches one of the excluded patterns, bypass is true and key is empty.
// The logger is used for warnings, it may be nil.
func (g *KeyGenerator) Key(req ClientRequest, policy Policy, logger log.FieldLogger) (key string, bypass bool) {
	addr := g.ClientAddress(req, logger)
	if g.isExcluded(addr) {
		return "", true
	}
	return MakeKey(addr, policy), false
}

// ClientAddress returns the normalized address of the client that sent the request.
func (g *KeyGenerator) ClientAddress(req ClientRequest, logger log.FieldLogger) string {
	if g.ipHeader == "" {
		return NormalizeAddress(req.RemoteAddr())
	}
	if val, ok := req.Header(g.ipHeader); ok {
		return NormalizeAddress(val)
	}
	if logger == nil {
		logger = g.logger
	}
	remoteAddr := req.RemoteAddr()
	logger.Warn("rate limit IP header is missing in request, remote address will be used",
		log.String("header", g.ipHeader), log.String("remote_addr", remoteAddr))
	return NormalizeAddress(remoteAddr)
}

func (g *KeyGenerator) isExcluded(addr string) bool {
	for _, match := range g.excludedAddresses {
		if match(addr) {
			return true
		}
	}
	return false
}

// MakeKey joins the address and the policy configuration key.
func MakeKey(addr string, policy Policy) string {
	return addr + KeySeparator + policy.ConfigurationKey()
}

// NormalizeAddress renders an IP address in its canonical form,
// so different textual forms of the same address produce the same key.
// IPv4-mapped IPv6 addresses are converted to IPv4.
// A string that is not an IP address is returned unchanged (no DNS lookup is made).
func NormalizeAddress(addr string) string {
	trimmed := strings.TrimSpace(addr)
	ip, err := netip.ParseAddr(strings.Trim(trimmed, "[]"))
	if err != nil {
		return addr
	}
	return ip.Unmap().String()
}
