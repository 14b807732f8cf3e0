package errors

import (
	"fmt"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *EnvError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *EnvError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// ChannelFailure wraps a rejected remote call.
func ChannelFailure(method string, err error) *EnvError {
	return Wrap(err, ErrCodeChannelFailure, fmt.Sprintf("remote call '%s' failed", method)).
		WithDetail("method", method)
}

// EnvNotFound is returned when a per-environment resource is requested for an id
// the mirror does not know about.
func EnvNotFound(envID string) *EnvError {
	return New(ErrCodeEnvNotFound,
		fmt.Sprintf("can't create a file manager - environment '%s' does not exist", envID)).
		WithDetail("envId", envID)
}

// UnknownEnv creates an unknown environment error for property writes.
func UnknownEnv(envID string) *EnvError {
	return New(ErrCodeUnknownEnv, fmt.Sprintf("unknown environment '%s'", envID)).
		WithDetail("envId", envID)
}

// UnknownChannel creates an error for an undeclared notification channel
func UnknownChannel(channel, action string) *EnvError {
	return New(ErrCodeUnknownChannel,
		fmt.Sprintf("tried to %s an unknown notification channel: %s", action, channel)).
		WithDetail("channel", channel)
}

// InvalidValue creates an error for a notification value of the wrong type
func InvalidValue(channel string, want, got interface{}) *EnvError {
	return New(ErrCodeInvalidValue,
		fmt.Sprintf("channel '%s' holds %T values, got %T", channel, want, got)).
		WithDetail("channel", channel)
}

// NotReady creates an error for operations attempted in the wrong lifecycle state
func NotReady(state string) *EnvError {
	return New(ErrCodeNotReady, fmt.Sprintf("remote state cache is %s", state)).
		WithDetail("state", state)
}

// InvalidProperty creates an error for environment property names that cannot be stored
func InvalidProperty(name string) *EnvError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid environment property name '%s'", name)).
		WithDetail("property", name)
}
