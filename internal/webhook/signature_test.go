package webhook

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign(t *testing.T) {
	body := []byte(`{"event":"job.completed","data":{"job_id":"abc"}}`)

	sig := Sign(body, "secret-1")

	assert.True(t, strings.HasPrefix(sig, "sha256="))
	// hex HMAC-SHA256 is 64 chars
	assert.Len(t, strings.TrimPrefix(sig, "sha256="), 64)

	// deterministic for the same body and secret
	assert.Equal(t, sig, Sign(body, "secret-1"))

	// different secret, different signature
	assert.NotEqual(t, sig, Sign(body, "secret-2"))
}

func TestVerify(t *testing.T) {
	body := []byte(`{"event":"job.completed"}`)
	sig := Sign(body, "secret-1")

	assert.True(t, Verify(body, "secret-1", sig))

	// tampered body fails
	assert.False(t, Verify([]byte(`{"event":"job.failed"}`), "secret-1", sig))

	// wrong secret fails
	assert.False(t, Verify(body, "secret-2", sig))

	// missing prefix fails
	assert.False(t, Verify(body, "secret-1", strings.TrimPrefix(sig, "sha256=")))

	// non-hex payload fails
	assert.False(t, Verify(body, "secret-1", "sha256=not-hex"))
}
