// Package logging configures the structured loggers used across gqlgate.
//
// Loggers are plain *slog.Logger values. Components take one in their
// constructor and fall back to Nop when none is given:
//
//	logger, closeLogs := logging.Open(logging.Config{
//	    Level:   logging.ParseLevel("debug"),
//	    Format:  logging.FormatJSON,
//	    PushURL: "http://localhost:3100/loki/api/v1/push",
//	})
//	defer closeLogs()
//
//	logging.Component(logger, "executor").Info("query executed", "fields", 2)
//
// With a PushURL the records go both to the local output and, batched, to
// the push endpoint through a Tee handler.
package logging
