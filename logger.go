package ecsync

// Logger provides structured logging hooks. Arguments are alternating keys and values.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Log keys used by the poller.
const (
	LogKeyKind      = "kind"
	LogKeyGroupID   = "group_id"
	LogKeyStoreID   = "store_id"
	LogKeyCount     = "count"
	LogKeyProcessID = "process_id"
	LogKeyErr       = "err"
)

// NopLogger discards everything.
type NopLogger struct{}

// Debug implements Logger.
func (NopLogger) Debug(string, ...any) {}

// Info implements Logger.
func (NopLogger) Info(string, ...any) {}

// Warn implements Logger.
func (NopLogger) Warn(string, ...any) {}

// Error implements Logger.
func (NopLogger) Error(string, ...any) {}
