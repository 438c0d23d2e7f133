/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package lrucache provides a concurrency-safe in-memory cache with LRU eviction policy,
// TTL-based expiration (optionally renewed on every access), and Prometheus metrics.
package lrucache
