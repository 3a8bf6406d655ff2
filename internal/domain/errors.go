package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "connect", "read", "write")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ErrorKind partitions exchange status codes by how the engine must react.
type ErrorKind string

const (
	// ErrKindAuth: credentials/permissions are wrong. Fatal to the engine.
	ErrKindAuth ErrorKind = "auth"
	// ErrKindRateLimit: retryable with backoff.
	ErrKindRateLimit ErrorKind = "rate_limit"
	// ErrKindInsufficientBalance: fatal to the specific call only.
	ErrKindInsufficientBalance ErrorKind = "insufficient_balance"
	// ErrKindParameter: request construction bug. Never retried.
	ErrKindParameter ErrorKind = "parameter"
	// ErrKindOrderPlacement: the order attempt is abandoned, the loop continues.
	ErrKindOrderPlacement ErrorKind = "order_placement"
	// ErrKindUnknown: unmapped status code, retryable by default.
	ErrKindUnknown ErrorKind = "unknown"
)

// APIError is a classified exchange business error. Kind drives both
// the retry predicate inside the gateway and the engine's reaction when
// the error escapes it.
type APIError struct {
	Kind ErrorKind
	Code int64
	Msg  string
	Op   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: api error [%s] code=%d msg=%s", e.Op, e.Kind, e.Code, e.Msg)
}

func (e *APIError) IsRetriable() bool {
	switch e.Kind {
	case ErrKindRateLimit, ErrKindUnknown:
		return true
	}
	return false
}

// StartupError wraps failures during initialization (market info,
// initial balance/position). Fatal because it happens before the main
// loop is entered.
type StartupError struct {
	Stage string
	Err   error
}

func (e *StartupError) Error() string {
	return "startup [" + e.Stage + "]: " + e.Err.Error()
}

func (e *StartupError) IsRetriable() bool {
	return false
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// IsEngineFatal reports whether err must stop the whole engine rather
// than just the call that produced it.
func IsEngineFatal(err error) bool {
	var api *APIError
	if errors.As(err, &api) {
		return api.Kind == ErrKindAuth
	}
	var startup *StartupError
	if errors.As(err, &startup) {
		return true
	}
	return errors.Is(err, ErrReconnectBudgetExhausted) || errors.Is(err, ErrHalted)
}

var (
	// ErrConnectionFailed is returned when websocket connection fails. It's usually retriable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrReconnectBudgetExhausted is returned once the stream reconnect
	// attempt budget is used up. Fatal: the engine must stop.
	ErrReconnectBudgetExhausted = errors.New("reconnect budget exhausted")

	// ErrOrderNotFound is returned when cancelling an order the venue no
	// longer knows. The order is treated as already gone.
	ErrOrderNotFound = errors.New("order not found")

	// ErrHalted is returned once the daily-loss breaker has tripped.
	// Terminal for the process lifetime.
	ErrHalted = errors.New("trading halted")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")

	// ErrStaleMarketData is returned when quoting is attempted without a
	// fresh order book.
	ErrStaleMarketData = errors.New("stale market data")
)
