package constants

// Error message limits.
const (
	// MaxErrorMessageLength truncates raw response bodies used as error messages.
	MaxErrorMessageLength = 200
)

// DefaultAnalyticsPeriod is requested when no period is configured.
const DefaultAnalyticsPeriod = "7d"
