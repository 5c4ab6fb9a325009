package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamespaced(t *testing.T) {
	assert.Equal(t, "lock:stake:8888", namespaced("", "lock", "stake:8888"))
	assert.Equal(t, "pool-a:ledger:events", namespaced("pool-a", "ledger:events"))
}

func TestClientKeyTrimsPrefixSeparator(t *testing.T) {
	c := &Client{prefix: "pool-a"}
	assert.Equal(t, "pool-a:ratelimit:0xabc", c.Key("ratelimit", "0xabc"))
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("ledger_events*"))
	assert.True(t, hasPattern("ledger_[ab]"))
	assert.False(t, hasPattern("ledger_events"))
}

func TestPayloadBytes(t *testing.T) {
	got, ok := payloadBytes(map[string]interface{}{"payload": "abc"})
	assert.True(t, ok)
	assert.Equal(t, []byte("abc"), got)

	got, ok = payloadBytes(map[string]interface{}{"payload": []byte("xyz")})
	assert.True(t, ok)
	assert.Equal(t, []byte("xyz"), got)

	_, ok = payloadBytes(map[string]interface{}{"other": "abc"})
	assert.False(t, ok)
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
}
