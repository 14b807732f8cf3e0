package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/grovetools/envmirror/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to stderr
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     os.Stderr,
	}
}

// Handle prints a message for err based on its code and returns err.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	var envErr *errors.EnvError
	if e, ok := err.(*errors.EnvError); ok {
		envErr = e
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(h.Out, "❌ Configuration not found. Create envmirror.yml or pass --config.\n")

	case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigValidation:
		fmt.Fprintf(h.Out, "❌ Invalid configuration: %v\n", err)

	case errors.ErrCodeChannelFailure:
		fmt.Fprintf(h.Out, "❌ Backend request failed: %v\n", err)
		fmt.Fprintf(h.Out, "Check 'envmirror backend status' or pick another --transport.\n")

	case errors.ErrCodeEnvNotFound, errors.ErrCodeUnknownEnv:
		if envErr != nil {
			fmt.Fprintf(h.Out, "❌ Environment '%v' does not exist\n", envErr.Details["envId"])
		} else {
			fmt.Fprintf(h.Out, "❌ %v\n", err)
		}
		fmt.Fprintf(h.Out, "Run 'envmirror envs list' to see available environments.\n")

	case errors.ErrCodeUnknownChannel, errors.ErrCodeInvalidValue, errors.ErrCodeInvalidInput:
		fmt.Fprintf(h.Out, "❌ %v\n", err)

	default:
		fmt.Fprintf(h.Out, "❌ Error: %v\n", err)
	}

	if h.Verbose && envErr != nil {
		fmt.Fprintf(h.Out, "\nError details:\n%s\n", envErr.ToJSON())
	}
	return err
}
