package domain

// RateLimitBucket is the fixed-window counter for one (route, token) pair
type RateLimitBucket struct {
	Count   int   `json:"count"`
	ResetAt int64 `json:"reset_at"` // unix seconds
}

// RateLimitInfo is the outcome of a limiter check, rendered as headers
type RateLimitInfo struct {
	Allowed           bool `json:"allowed"`
	Limit             int  `json:"limit"`
	Remaining         int  `json:"remaining"`
	ResetSeconds      int  `json:"reset_seconds"`
	RetryAfterSeconds int  `json:"retry_after_seconds"`
}
