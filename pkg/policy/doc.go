// Package policy provides access to the remote policy service that defines,
// per subscription plan, which roles may perform which actions on which
// resources.
//
// # Overview
//
// Client is the HTTP implementation of authz.Source. CachedSource wraps any
// authz.Source with a two-level cache: an in-process expirable LRU in front
// of an optional shared Redis layer. Cache failures degrade to a direct
// fetch; they never turn into an allow or a deny by themselves.
//
// # Usage Example
//
//	client := policy.NewClient(cfg.PolicyServiceURL, policy.WithTimeout(cfg.PolicyServiceTimeout))
//	source := policy.NewCachedSource(client, policy.CacheConfig{TTL: time.Minute}, redisClient)
//	resolver := authz.NewResolver(source)
package policy
