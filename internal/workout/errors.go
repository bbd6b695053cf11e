package workout

import (
	"github.com/myrjola/liftcycle/internal/errors"
)

var (
	// ErrNotFound is returned when a referenced user, definition, cycle, workout, exercise or set does not exist.
	ErrNotFound = errors.NewSentinel("not found")
	// ErrInvalidTransition is returned when an event does not apply to the current state. Nothing is written.
	ErrInvalidTransition = errors.NewSentinel("invalid transition")
	// ErrNoMatchingDefinition is returned when the catalogue has no definition for a workout slot.
	ErrNoMatchingDefinition = errors.NewSentinel("no matching exercise definition")
	// ErrGenerationFailed wraps every failure of CreateCycle. Nothing is persisted when it is returned.
	ErrGenerationFailed = errors.NewSentinel("cycle generation failed")
	// ErrInvalidPerformance is returned for negative weights, reps or RPE outside 1-10.
	ErrInvalidPerformance = errors.NewSentinel("invalid performance")
	// ErrInvalidConfig is returned by NewService for a periodization table that cannot produce valid sets.
	ErrInvalidConfig = errors.NewSentinel("invalid service config")
)
