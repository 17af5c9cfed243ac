package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyNamespacesParts(t *testing.T) {
	assert.Equal(t, "attendance:code:lec", Key("code", "lec"))
	assert.Equal(t, "attendance:auth:revoked:abc", Key("auth", "revoked", "abc"))
	assert.Equal(t, "attendance:ledger-writes", Key("ledger-writes"))
}

func TestHealthyNilSafe(t *testing.T) {
	var r *Redis
	assert.False(t, r.Healthy(context.Background()))
}
