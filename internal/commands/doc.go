// Package commands routes prefixed chat messages to command handlers.
//
// A Dispatcher parses each message, looks the command up in a Table built
// once at startup, takes a read-only state snapshot and runs the handler.
// Every outcome is classified by ErrorKind and logged at a matching level:
//
//	KindNone                       debug trace, dev and debug modes only
//	KindCommandNotFound, TooEarly  warning
//	KindTreatedException           nothing, the handler already replied
//	everything else                error with its cause
//
// Handlers are isolated from one another: a returned error or a panic ends
// that invocation only.
package commands
