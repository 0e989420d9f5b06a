package redact_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/phrazzld/shelf-api/internal/redact"
	"github.com/stretchr/testify/assert"
)

const hexToken = "3f2a9c1be7d04a5f8c6e2b1d9a0f7e4c3b2a1908f7e6d5c4b3a29180f7e6d5c4"

func TestRedactString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "no sensitive data",
			input:    "worker finished task",
			expected: "worker finished task",
		},
		{
			name:     "bearer header",
			input:    "Authorization: Bearer " + hexToken,
			expected: "Authorization: Bearer [REDACTED_TOKEN]",
		},
		{
			name:     "bare opaque token",
			input:    "lookup failed for " + hexToken,
			expected: "lookup failed for [REDACTED_TOKEN]",
		},
		{
			name:     "database connection string",
			input:    "dial postgres://shelf:hunter22@db:5432/shelf failed",
			expected: "dial [REDACTED_CREDENTIAL]db:5432/shelf failed",
		},
		{
			name:     "password parameter",
			input:    "login with password=secret123 rejected",
			expected: "login with [REDACTED_CREDENTIAL] rejected",
		},
		{
			name:     "file path",
			input:    "open /var/lib/shelf/uploads/batch.csv",
			expected: "open [REDACTED_PATH]",
		},
		{
			name:     "email address",
			input:    "duplicate user reader@example.com",
			expected: "duplicate user [REDACTED_EMAIL]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, redact.String(tt.input))
		})
	}
}

func TestRedactString_SQL(t *testing.T) {
	t.Parallel()

	out := redact.String("query failed: UPDATE upload_tasks SET status = 'processing' WHERE id = $1")
	assert.Contains(t, out, "[REDACTED_SQL]")
	assert.NotContains(t, out, "upload_tasks")
}

func TestRedactError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", redact.Error(nil))

	err := fmt.Errorf("revoke: %w", errors.New("token "+hexToken+" not found"))
	out := redact.Error(err)
	assert.NotContains(t, out, hexToken)
	assert.True(t, strings.HasPrefix(out, "revoke: "))
}

func TestToken(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "3f2a9c1b...", redact.Token(hexToken))
	assert.Equal(t, redact.RedactedTokenPlaceholder, redact.Token("short"))
	assert.Equal(t, redact.RedactedTokenPlaceholder, redact.Token(""))
}
