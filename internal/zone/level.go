package zone

import (
	"errors"
	"fmt"

	"github.com/ppiankov/humanloop/internal/model"
)

// Ordinal trust levels. Higher is more trusted.
const (
	LevelExternal   = 0
	LevelSystem     = 1
	LevelGovernance = 2
	LevelHuman      = 3

	// levelUnknown sits below EXTERNAL so an unrecognised zone can never
	// be a source of trust.
	levelUnknown = -1
)

// Level returns the ordinal trust level of z.
func Level(z model.TrustZone) int {
	switch z {
	case model.ZoneHuman:
		return LevelHuman
	case model.ZoneGovernance:
		return LevelGovernance
	case model.ZoneSystem:
		return LevelSystem
	case model.ZoneExternal:
		return LevelExternal
	default:
		return levelUnknown
	}
}

// Crossing is the outcome of a trust boundary check.
type Crossing struct {
	Allowed            bool `json:"allowed"`
	RequiresValidation bool `json:"requires_validation"`
}

// CheckTrustCrossing decides whether a request may move from source to target.
//
// INVARIANT: no non-human source may self-escalate trust. Moving to an equal
// or lower level is always free; moving up requires validation and is only
// allowed from the HUMAN zone. Nothing crosses out of an unknown zone.
func CheckTrustCrossing(source, target model.TrustZone) Crossing {
	if !source.Valid() {
		return Crossing{Allowed: false, RequiresValidation: true}
	}
	if Level(target) <= Level(source) {
		return Crossing{Allowed: true, RequiresValidation: false}
	}
	return Crossing{
		Allowed:            source == model.ZoneHuman,
		RequiresValidation: true,
	}
}

// ErrTrustViolation matches every TrustViolationError via errors.Is.
var ErrTrustViolation = errors.New("trust violation")

// TrustViolationError reports a disallowed zone crossing.
type TrustViolationError struct {
	Source  model.TrustZone
	Target  model.TrustZone
	Message string
}

func (e *TrustViolationError) Error() string {
	return fmt.Sprintf("trust violation %s -> %s: %s", e.Source, e.Target, e.Message)
}

// Is makes errors.Is(err, ErrTrustViolation) succeed.
func (e *TrustViolationError) Is(target error) bool {
	return target == ErrTrustViolation
}

// RequireTrustCrossing is the fail-fast variant of CheckTrustCrossing.
func RequireTrustCrossing(source, target model.TrustZone) error {
	if CheckTrustCrossing(source, target).Allowed {
		return nil
	}
	return &TrustViolationError{
		Source: source,
		Target: target,
		Message: fmt.Sprintf("%s zone (level %d) may not escalate to %s zone (level %d)",
			source, Level(source), target, Level(target)),
	}
}
