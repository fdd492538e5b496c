package types

type RunMode string

const (
	// ModeLocal runs the API server, the Telegram poller and the reconciliation runner
	ModeLocal RunMode = "local"
	// ModeAPI runs the API server and the Telegram poller only
	ModeAPI RunMode = "api"
	// ModeWorker runs only the reconciliation runner
	ModeWorker RunMode = "worker"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)
