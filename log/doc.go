// Package log provides a simple, leveled logging interface for ragchat.
//
// The Logger interface has four printf-style methods: Debug, Info, Warn and
// Error. Three implementations are included:
//
//   - DefaultLogger writes through Go's standard log package.
//   - GologLogger forwards to a github.com/kataras/golog logger; the service
//     binary uses NewServiceLogger.
//   - NoOpLogger discards everything.
//
// A package-level logger backs the Debug, Info, Warn and Error functions and
// is used by components that were not given a logger explicitly:
//
//	log.SetDefaultLogger(log.NewServiceLogger(log.LogLevelDebug))
//	log.Info("listening on %s", addr)
//
// CallbackHandler adapts a Logger to langchaingo's callbacks.Handler so model
// calls made through llms.Model implementations are logged.
package log
