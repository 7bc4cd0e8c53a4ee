package catalog

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a store failure at the point where it is produced.
type Kind uint8

const (
	// KindFatal failures are not expected to succeed on retry.
	KindFatal Kind = iota
	// KindTransient failures (timeouts, dropped connections, saturated pools) may succeed on retry.
	KindTransient
)

func (k Kind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "fatal"
}

// StoreError wraps a backing-store failure with the operation name and its kind.
type StoreError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *StoreError) Error() string {
	return "catalog: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Transient builds a StoreError of kind KindTransient. Used by fakes and adapters.
func Transient(op string, err error) error {
	return &StoreError{Op: op, Kind: KindTransient, Err: err}
}

// IsTransient reports whether err carries a transient StoreError.
func IsTransient(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind == KindTransient
	}
	return false
}

// transientSQLStates lists postgres error codes that indicate capacity or connectivity trouble.
var transientSQLStates = map[string]struct{}{
	"53000": {}, // insufficient_resources
	"53300": {}, // too_many_connections
	"57014": {}, // query_canceled (statement_timeout)
	"57P01": {}, // admin_shutdown
	"57P02": {}, // crash_shutdown
	"57P03": {}, // cannot_connect_now
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Kind: classify(err), Err: err}
}

func classify(err error) Kind {
	if errors.Is(err, context.Canceled) {
		return KindFatal
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return KindTransient
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") {
			return KindTransient
		}
		if _, ok := transientSQLStates[pgErr.Code]; ok {
			return KindTransient
		}
		return KindFatal
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindFatal
}
