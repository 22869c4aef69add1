package ai

import "sync/atomic"

// debugLoggingEnabled gates per-tick debug logging so hot paths skip
// attribute construction when nobody is listening.
var debugLoggingEnabled atomic.Bool

// EnableDebugLogging enables or disables debug logging for the AI
// subsystem. Call once during initialization after parsing config.
func EnableDebugLogging(enabled bool) {
	debugLoggingEnabled.Store(enabled)
}

// IsDebugEnabled reports whether debug logging is on. Guard
// expensive debug log calls with it:
//
//	if ai.IsDebugEnabled() {
//	    slog.Debug("tick detail", "data", computeExpensiveData())
//	}
func IsDebugEnabled() bool {
	return debugLoggingEnabled.Load()
}
