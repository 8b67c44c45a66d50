package feed

import (
	"fmt"
	"strings"
)

// Validation error codes (E200-E299)
const (
	ErrFeedNameEmpty    = "E201" // name is required
	ErrNegativeDuration = "E202" // delay or interval below zero
	ErrNoTopics         = "E203" // at least one topic required
	ErrDuplicateKey     = "E204" // topic key declared twice
	ErrUnknownGenerator = "E205" // generator not recognised
	ErrMissingValue     = "E206" // constant topic without value
	ErrUnusedParameter  = "E207" // parameter the generator ignores
	ErrIntervalNoEffect = "E208" // interval set but nothing repeats
)

// ValidationError is a rule violation in a compiled feed.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled feed. Returns all errors found (does not
// fail-fast), in declaration order.
func Validate(spec *Spec) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "name is required and must be non-empty",
			Code:    ErrFeedNameEmpty,
		})
	}
	if spec.Delay < 0 {
		errs = append(errs, ValidationError{
			Field:   "delay",
			Message: fmt.Sprintf("delay %s must not be negative", spec.Delay),
			Code:    ErrNegativeDuration,
		})
	}
	if spec.Interval < 0 {
		errs = append(errs, ValidationError{
			Field:   "interval",
			Message: fmt.Sprintf("interval %s must not be negative", spec.Interval),
			Code:    ErrNegativeDuration,
		})
	}
	if len(spec.Topics) == 0 {
		errs = append(errs, ValidationError{
			Field:   "topics",
			Message: "at least one topic is required",
			Code:    ErrNoTopics,
		})
	}

	seen := make(map[int32]int, len(spec.Topics))
	repeating := false
	for i, t := range spec.Topics {
		field := fmt.Sprintf("topics[%d]", i)
		line := 0
		if t.Pos.IsValid() {
			line = t.Pos.Line()
		}

		if first, dup := seen[t.Key]; dup {
			errs = append(errs, ValidationError{
				Field:   field + ".key",
				Message: fmt.Sprintf("key %d already declared by topics[%d]", t.Key, first),
				Code:    ErrDuplicateKey,
				Line:    line,
			})
		} else {
			seen[t.Key] = i
		}

		switch t.Generator {
		case GeneratorConstant:
			if t.Value == nil {
				errs = append(errs, ValidationError{
					Field:   field + ".value",
					Message: "constant generator requires a value",
					Code:    ErrMissingValue,
					Line:    line,
				})
			}
		case GeneratorCounter, GeneratorClock, GeneratorEcho:
			repeating = true
			if t.Value != nil {
				errs = append(errs, ValidationError{
					Field:   field + ".value",
					Message: fmt.Sprintf("%s generator ignores value", t.Generator),
					Code:    ErrUnusedParameter,
					Line:    line,
				})
			}
		default:
			errs = append(errs, ValidationError{
				Field:   field + ".generator",
				Message: fmt.Sprintf("unknown generator %q", t.Generator),
				Code:    ErrUnknownGenerator,
				Line:    line,
			})
		}

		if t.Layout != "" && t.Generator != GeneratorClock {
			errs = append(errs, ValidationError{
				Field:   field + ".layout",
				Message: "layout only applies to the clock generator",
				Code:    ErrUnusedParameter,
				Line:    line,
			})
		}
		if (t.Start != 0 || t.Step != 0) && t.Generator != GeneratorCounter {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "start and step only apply to the counter generator",
				Code:    ErrUnusedParameter,
				Line:    line,
			})
		}
	}

	if spec.Interval > 0 && !repeating && len(spec.Topics) > 0 {
		errs = append(errs, ValidationError{
			Field:   "interval",
			Message: "interval is set but every topic is constant",
			Code:    ErrIntervalNoEffect,
		})
	}

	return errs
}
