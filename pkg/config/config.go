// Package config holds the client-level settings shared by the transport,
// token manager and operation registry.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Defaults applied by ApplyDefaults when the caller leaves a field zero.
const (
	DefaultTimeout      = 240 * time.Second
	DefaultRetryMax     = 3
	DefaultRetryWaitMin = 1 * time.Second
	DefaultRetryWaitMax = 30 * time.Second
	DefaultReturnFormat = "json"
)

// Error reports an invalid client setting. It is returned by the call
// that set the value, never deferred.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Config configures one client instance.
type Config struct {
	// BaseURL is the service root. A missing scheme defaults to https and a
	// trailing slash is stripped.
	BaseURL  string `validate:"required"`
	Username string `validate:"required"`
	Password string `validate:"required"`

	// Timeout bounds each individual request attempt. Zero selects
	// DefaultTimeout; -1 removes the bound entirely.
	Timeout time.Duration `validate:"min=0"`

	// InsecureSkipVerify disables TLS verification for this client only,
	// never process-wide.
	InsecureSkipVerify bool

	// HideDeprecated drops deprecated endpoints from the generated surface
	// at construction time.
	HideDeprecated bool

	// ReturnFormat selects the Accept header for profiles that negotiate it.
	ReturnFormat string `validate:"omitempty,oneof=json xml"`

	// RetryMax caps the retry attempts after the first try. Zero selects
	// DefaultRetryMax; -1 disables retries.
	RetryMax     int `validate:"min=0"`
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	Logger *zap.Logger
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ApplyDefaults fills zero fields with the package defaults. Timeout and
// RetryMax treat -1 as "explicitly off", since their zero value means unset.
func (c *Config) ApplyDefaults() {
	switch {
	case c.Timeout == 0:
		c.Timeout = DefaultTimeout
	case c.Timeout < 0:
		c.Timeout = 0
	}
	switch {
	case c.RetryMax == 0:
		c.RetryMax = DefaultRetryMax
	case c.RetryMax < 0:
		c.RetryMax = 0
	}
	if c.RetryWaitMin == 0 {
		c.RetryWaitMin = DefaultRetryWaitMin
	}
	if c.RetryWaitMax == 0 {
		c.RetryWaitMax = DefaultRetryWaitMax
	}
	if c.ReturnFormat == "" {
		c.ReturnFormat = DefaultReturnFormat
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Validate checks the configuration and reports the first violation as a
// *Error.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return &Error{Field: fe.Field(), Reason: fmt.Sprintf("failed %q constraint", fe.Tag())}
		}
		return err
	}
	if c.RetryWaitMin > c.RetryWaitMax {
		return &Error{Field: "RetryWaitMin", Reason: "must not exceed RetryWaitMax"}
	}
	return nil
}

// NormalizeBaseURL tolerates URLs with a trailing slash or a missing scheme.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u != "" && !strings.HasPrefix(u, "http") {
		u = "https://" + u
	}
	return strings.TrimRight(u, "/")
}
