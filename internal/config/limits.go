package config

import "time"

const (
	// DefaultRateLimitPerWindow is the number of chat proxy requests a
	// single client may make within one rate-limit window.
	DefaultRateLimitPerWindow = 20

	// DefaultRateLimitWindow is the coarse rate-limit window size. Counts
	// are keyed by window start rounded down to this interval, not by a
	// sliding window.
	DefaultRateLimitWindow = 60 * time.Second

	// DefaultAIQuestionQuota is the number of AI-generated advanced
	// questions asked before moving on to final name generation.
	DefaultAIQuestionQuota = 3

	// DefaultMaxFollowUpDepth is the maximum depth of a follow-up chain
	// rooted on one advanced question. Reaching it always advances to the
	// next advanced question.
	DefaultMaxFollowUpDepth = 3

	// DefaultLocale is used when neither the request body, the query
	// string nor the Accept-Language header resolves a locale.
	DefaultLocale = "zh"

	// MaxRequestBodyBytes limits gateway request bodies.
	MaxRequestBodyBytes = 1 << 20
)
