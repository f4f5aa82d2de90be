// Package logger wraps zap with a global sugared logger, a console
// encoder, level parsing, context helpers (ToContext, FromContext,
// WithName, WithKV, WithFields), and leveled convenience functions
// (Infof, ErrorKV, etc.).
//
// Every component takes a context and logs through the logger it carries,
// so session-scoped fields attached once follow the whole event cycle.
package logger
