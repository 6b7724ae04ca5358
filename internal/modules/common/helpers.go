// Package common holds helpers shared by the subsystem modules.
package common

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// RunCommand executes an external tool bounded by the context and returns
// its stdout. Module readers go through this so every external call is
// cancellable at its timeout boundary.
func RunCommand(ctx context.Context, name string, args ...string) (string, error) {
	if _, err := exec.LookPath(name); err != nil {
		return "", fmt.Errorf("%s not found: %w", name, err)
	}

	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return string(out), nil
}

// HandleErrors collects errors from an error channel and returns a combined
// error if any. The channel must already be closed.
func HandleErrors(errCh chan error) error {
	var errs []error
	for err := range errCh {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("multiple collection errors: %v", errs)
	}
	return nil
}

// ParseFloat parses a trimmed numeric field, tolerating a trailing unit
// suffix such as "%" or "x".
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "%x")
	return strconv.ParseFloat(s, 64)
}

// Fields splits a line on whitespace; empty lines return nil.
func Fields(line string) []string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
