package contracts

import (
	"fmt"
	"strings"
)

// ConfigurationError is fatal and raised before any side effect
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Message)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// NewConfigurationError creates a ConfigurationError
func NewConfigurationError(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// SourceAttempt is one source's contribution to a failed fetch
type SourceAttempt struct {
	Source   string `json:"source"`
	Attempts int    `json:"attempts"`
	Err      string `json:"error"`
}

// FetchFailure means every configured source was exhausted for a symbol.
// Per-symbol and non-fatal: it is recorded, never raised out of a batch.
type FetchFailure struct {
	Symbol   Symbol
	Attempts []SourceAttempt
}

func (e *FetchFailure) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s x%d: %s", a.Source, a.Attempts, a.Err))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("fetch failed for %s: no sources attempted", e.Symbol)
	}
	return fmt.Sprintf("fetch failed for %s: %s", e.Symbol, strings.Join(parts, "; "))
}

// IndicatorUnavailable explains why one indicator has no value
type IndicatorUnavailable struct {
	Symbol    Symbol
	Indicator string
	Reason    string
}

func (e *IndicatorUnavailable) Error() string {
	return fmt.Sprintf("indicator %s unavailable for %s: %s", e.Indicator, e.Symbol, e.Reason)
}

// PersistenceError is fatal for the run; nothing was committed
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ExportError is fatal for the run; the snapshot file was not replaced
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error (%s): %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
