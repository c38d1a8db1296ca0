package redis

import "fmt"

// Key patterns, joined to the environment prefix by BuildKey
const (
	KeyRateLimit = "clicktrack:ratelimit:%s" // clicktrack:ratelimit:{sha256(route|token)}
	KeySettings  = "clicktrack:settings"
	KeyLock      = "clicktrack:lock:%s"
	KeyStats     = "clicktrack:stats:totals"
)

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	if environment == "development" || environment == "staging" {
		prefix = "staging"
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

func (kb *KeyBuilder) KeyRateLimit(bucketHash string) string {
	return kb.BuildKey(fmt.Sprintf(KeyRateLimit, bucketHash))
}

func (kb *KeyBuilder) KeySettings() string {
	return kb.BuildKey(KeySettings)
}

func (kb *KeyBuilder) KeyLock(name string) string {
	return kb.BuildKey(fmt.Sprintf(KeyLock, name))
}

func (kb *KeyBuilder) KeyStats() string {
	return kb.BuildKey(KeyStats)
}

// KeyCustom builds a key for ad-hoc patterns
func (kb *KeyBuilder) KeyCustom(pattern string, args ...interface{}) string {
	return kb.BuildKey(fmt.Sprintf(pattern, args...))
}
