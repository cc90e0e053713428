package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrTimeout         ErrorCode = "operation_timeout"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"
	ErrInvalidPercent  ErrorCode = "invalid_percent"

	// Initialization errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"

	// Controller errors
	ErrUnreachable     ErrorCode = "controller_unreachable"
	ErrSensorsNotReady ErrorCode = "sensors_not_ready"
	ErrCommandFailed   ErrorCode = "command_failed"

	// Policy errors
	ErrPersistenceFailed ErrorCode = "persistence_failed"
	ErrUnauthorized      ErrorCode = "unauthorized"

	// Journal errors
	ErrInitJournal  ErrorCode = "init_journal_failed"
	ErrCloseJournal ErrorCode = "close_journal_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:          "Internal error occurred",
	ErrInvalidArgument:   "Invalid argument provided",
	ErrTimeout:           "Operation timed out",
	ErrAlreadyRunning:    "Another instance is already running",
	ErrInvalidConfig:     "Invalid configuration",
	ErrBindFlags:         "Failed to bind flags",
	ErrReadConfig:        "Failed to read config file",
	ErrInvalidInterval:   "Invalid interval value",
	ErrInvalidLogLevel:   "Invalid log level",
	ErrInvalidPercent:    "Fan percent must be between 0 and 100",
	ErrInitFailed:        "Initialization failed",
	ErrShutdownFailed:    "Shutdown failed",
	ErrUnreachable:       "Controller unreachable",
	ErrSensorsNotReady:   "Controller sensors not ready",
	ErrCommandFailed:     "Controller command failed",
	ErrPersistenceFailed: "Failed to persist policy",
	ErrUnauthorized:      "Requester not authorized",
	ErrInitJournal:       "Failed to initialize journal",
	ErrCloseJournal:      "Failed to close journal",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
