package errors

import (
	"fmt"
	"testing"
)

func TestEnvError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeEnvNotFound, "environment not found")
	if err.Code != ErrCodeEnvNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeEnvNotFound, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeChannelFailure, "call failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	// Test Is function
	if !Is(wrapped, ErrCodeChannelFailure) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeEnvNotFound) {
		t.Error("Is should return false for non-matching code")
	}

	// Test WithDetail
	detailed := err.WithDetail("envId", "a").WithDetail("attempt", 2)
	if detailed.Details["envId"] != "a" {
		t.Error("WithDetail should add details")
	}
}

func TestIsThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("setting theme: %w", UnknownEnv("x"))
	if !Is(err, ErrCodeUnknownEnv) {
		t.Error("Is should see codes behind fmt wrapping")
	}
	if GetCode(nil) != "" {
		t.Error("GetCode(nil) should be empty")
	}
	if Is(fmt.Errorf("plain"), "") {
		t.Error("Is should never match the empty code")
	}
}

func TestErrorConstructors(t *testing.T) {
	err := EnvNotFound("vm-1")
	if err.Code != ErrCodeEnvNotFound {
		t.Errorf("expected code %s, got %s", ErrCodeEnvNotFound, err.Code)
	}
	if err.Details["envId"] != "vm-1" {
		t.Error("EnvNotFound should include envId detail")
	}

	err = UnknownChannel("env-zoom", "set")
	if err.Code != ErrCodeUnknownChannel {
		t.Errorf("expected code %s, got %s", ErrCodeUnknownChannel, err.Code)
	}
	if err.Details["channel"] != "env-zoom" {
		t.Error("UnknownChannel should include channel detail")
	}

	err = ChannelFailure("setSetting", fmt.Errorf("boom"))
	if err.Details["method"] != "setSetting" {
		t.Error("ChannelFailure should include method detail")
	}
}
