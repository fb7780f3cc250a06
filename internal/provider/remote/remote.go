// Package remote holds the error vocabulary and HTTP helpers shared by the
// enhancement provider clients.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// Sentinel errors for provider failures.
var (
	ErrRemoteCall       = errors.New("remote enhancement call failed")
	ErrUnauthorized     = errors.New("remote provider rejected credentials")
	ErrBilling          = errors.New("remote provider billing issue")
	ErrRemoteTimeout    = errors.New("remote provider timeout")
	ErrUnreachable      = errors.New("remote provider unreachable")
	ErrInvalidResponse  = errors.New("remote provider returned invalid response")
	ErrUnsupportedStage = errors.New("stage not supported by provider")
)

const maxErrorBody = 512

// CheckStatus returns nil when resp has one of the accepted status codes.
// Otherwise it reads a bounded part of the body and returns an error wrapping
// ErrRemoteCall, plus ErrUnauthorized or ErrBilling where the status says so.
func CheckStatus(resp *http.Response, accepted ...int) error {
	for _, code := range accepted {
		if resp.StatusCode == code {
			return nil
		}
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody*4))
	msg := errorMessage(body)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w: status %d: %s", ErrRemoteCall, ErrUnauthorized, resp.StatusCode, msg)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %w: status %d: %s", ErrRemoteCall, ErrBilling, resp.StatusCode, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrRemoteCall, resp.StatusCode, msg)
	}
}

// errorMessage pulls a human readable message out of an error body. Replicate
// uses "detail", DeepAI uses "err" or "status".
func errorMessage(body []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, key := range []string{"detail", "error", "err", "status", "message"} {
			if s, ok := fields[key].(string); ok && s != "" {
				return Truncate(s, maxErrorBody)
			}
		}
	}
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "empty response body"
	}
	return Truncate(s, maxErrorBody)
}

// ClassifyError maps transport-level errors to sentinel errors. Cancellation
// by the caller is passed through untouched.
func ClassifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrRemoteTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrRemoteTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Truncate shortens s to at most n bytes, marking the cut.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
