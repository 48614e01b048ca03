package domain

import (
	"errors"
	"fmt"
	"time"

	"fleethire/internal/models"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// Rule names carried by ValidationError and StateError.
const (
	RuleRequired       = "required"
	RuleInvalid        = "invalid"
	RulePastStart      = "past_start"
	RuleEndBeforeStart = "end_before_start"
	RuleNonPositive    = "non_positive"
	RuleUnknown        = "unknown"
	RuleDuplicate      = "duplicate"

	RuleStatus         = "status"
	RuleLeadTime       = "lead_time"
	RuleDeparted       = "departed"
	RuleDepositMissing = "deposit_missing"
)

type ValidationError struct {
	Field string
	Rule  string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

func (e ValidationError) Unwrap() error { return e.Err }

// CapacityError reports that the fleet cannot cover a request; Result carries the suggestions.
type CapacityError struct {
	Result *models.AvailabilityResult
}

func (e CapacityError) Error() string {
	if e.Result == nil {
		return "insufficient capacity"
	}
	return fmt.Sprintf("insufficient capacity for category %d: need %d, available %d",
		e.Result.CategoryID, e.Result.NeededCount, e.Result.AvailableCount)
}

// StateError rejects an operation the booking's status or timing does not permit.
type StateError struct {
	Rule   string
	Status models.BookingStatus
	Msg    string
}

func (e StateError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("operation not allowed in status %s (%s)", e.Status, e.Rule)
}

type CooldownError struct {
	Remaining time.Duration
}

func (e CooldownError) Error() string {
	return fmt.Sprintf("assignment cooldown active, retry in %s", e.Remaining.Round(time.Second))
}

// RemainingSeconds rounds up so callers never retry early.
func (e CooldownError) RemainingSeconds() int {
	secs := int(e.Remaining / time.Second)
	if e.Remaining%time.Second != 0 {
		secs++
	}
	return secs
}

type DependencyUnavailableError struct {
	Dependency string
	Err        error
}

func (e DependencyUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s unavailable", e.Dependency)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e DependencyUnavailableError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsCapacity(err error) bool {
	var target CapacityError
	return errors.As(err, &target)
}

func IsState(err error) bool {
	var target StateError
	return errors.As(err, &target)
}

func IsCooldown(err error) bool {
	var target CooldownError
	return errors.As(err, &target)
}

func IsDependencyUnavailable(err error) bool {
	var target DependencyUnavailableError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
