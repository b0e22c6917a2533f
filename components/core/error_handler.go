package core

// ErrorHandler handles errors.
type ErrorHandler interface {
	// HandleError handles error.
	HandleError(err error)
}

// LogErrorHandler logs errors with the configured prefix.
type LogErrorHandler struct {
	Prefix string
}

// HandleError logs the error.
func (h *LogErrorHandler) HandleError(err error) {
	LogErr.Printf("%s: %v\n", h.Prefix, err)
}
