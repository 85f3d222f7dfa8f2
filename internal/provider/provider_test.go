package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeState(t *testing.T) {
	cases := []struct {
		raw  string
		want State
		ok   bool
	}{
		{"pending", StatePending, true},
		{"QUEUED", StatePending, true},
		{"processing", StateRunning, true},
		{"in_progress", StateRunning, true},
		{"completed", StateSucceeded, true},
		{"  done  ", StateSucceeded, true},
		{"failed", StateError, true},
		{"halfway-ish", "", false},
		{"", "", false},
	}

	for _, tc := range cases {
		got, ok := NormalizeState(tc.raw)
		assert.Equal(t, tc.ok, ok, "raw=%q", tc.raw)
		if ok {
			assert.Equal(t, tc.want, got, "raw=%q", tc.raw)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.Equal(t, FailureNone, Classify(nil))
	})

	t.Run("transient codes", func(t *testing.T) {
		for _, code := range []string{"server_busy", "resource_exhausted", "rate_limited"} {
			assert.Equal(t, FailureTransient, Classify(&Error{Code: code}), "code=%s", code)
		}
	})

	t.Run("content policy codes", func(t *testing.T) {
		for _, code := range []string{"content_policy_violation", "sensitive_content", "prompt_rejected"} {
			assert.Equal(t, FailureContentPolicy, Classify(&Error{Code: code}), "code=%s", code)
		}
	})

	t.Run("message keyword fallback", func(t *testing.T) {
		assert.Equal(t, FailureTransient,
			Classify(&Error{Code: "e1", Message: "resource is still allocating"}))
		assert.Equal(t, FailureContentPolicy,
			Classify(&Error{Code: "e2", Message: "blocked by content policy"}))
	})

	t.Run("wrapped provider error", func(t *testing.T) {
		wrapped := errors.Join(errors.New("submit failed"), &Error{Code: "server_busy"})
		assert.Equal(t, FailureTransient, Classify(wrapped))
	})

	t.Run("plain error is unknown", func(t *testing.T) {
		assert.Equal(t, FailureUnknown, Classify(errors.New("something exploded")))
	})
}
