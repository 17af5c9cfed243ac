package httpmiddleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketExhausts(t *testing.T) {
	l := NewSimpleTokenBucket(3, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("1.2.3.4"), "request %d should pass", i)
	}
	assert.False(t, l.allow("1.2.3.4"), "bucket should be empty")

	// Other clients are unaffected.
	assert.True(t, l.allow("5.6.7.8"))
}

func TestTokenBucketDefaultsCapacity(t *testing.T) {
	l := NewSimpleTokenBucket(0, 10)
	assert.Equal(t, 10, l.capacity)
}
