// Package cache provides the Redis client constructor and a two-tier
// read-through cache used for public article reads.
//
// The first tier is an expiring in-process LRU. The second tier, when a
// Redis client is supplied, is shared between API replicas so a write on one
// replica invalidates the copy every other replica would load next. Local
// tiers on other replicas still serve stale entries until their TTL passes.
package cache
