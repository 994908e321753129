package gemini

import (
	"math/rand"
	"strings"
)

// KeyPool is a pool of upstream credentials. One key is chosen at random per
// request to spread quota across keys; there is no health-based selection.
type KeyPool struct {
	keys []string
}

// NewKeyPool parses a comma-separated credential list. Blank entries are
// dropped.
func NewKeyPool(raw string) *KeyPool {
	var keys []string
	for _, key := range strings.Split(raw, ",") {
		key = strings.TrimSpace(key)
		if key != "" {
			keys = append(keys, key)
		}
	}
	return &KeyPool{keys: keys}
}

// Pick returns a random key from the pool, or "" when none is configured.
func (p *KeyPool) Pick() string {
	switch len(p.keys) {
	case 0:
		return ""
	case 1:
		return p.keys[0]
	default:
		return p.keys[rand.Intn(len(p.keys))]
	}
}

// Size returns the number of configured keys.
func (p *KeyPool) Size() int {
	return len(p.keys)
}
