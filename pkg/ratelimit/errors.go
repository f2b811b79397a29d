package ratelimit

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

var (
	errBadAmount   = errors.New("amount must be a positive integer")
	errBadInterval = errors.New("interval must be positive")
	errBadTimeout  = errors.New("timeout must not be negative")
)

// UnknownSectionError is returned when an Evaluate call names a section
// that is not present in the limiter's Sections. It is raised before any
// store state is touched and is never retried.
type UnknownSectionError struct {
	Section string
	// Valid holds the configured section names, sorted.
	Valid []string
}

func (e *UnknownSectionError) Error() string {
	return "ratelimit: unknown section " + strconv.Quote(e.Section) +
		", valid sections: " + strings.Join(e.Valid, ", ")
}

// IsUnknownSection reports whether err is (or wraps) an UnknownSectionError.
func IsUnknownSection(err error) bool {
	var u *UnknownSectionError
	return errors.As(err, &u)
}

func unknownSection(section string, sections Sections) *UnknownSectionError {
	valid := make([]string, 0, len(sections))
	for name := range sections {
		valid = append(valid, name)
	}
	sort.Strings(valid)
	return &UnknownSectionError{Section: section, Valid: valid}
}

// InvalidRuleError reports a malformed rule found by Sections.Validate.
type InvalidRuleError struct {
	Section string
	Reason  error
}

func (e *InvalidRuleError) Error() string {
	return "ratelimit: invalid rule for section " + strconv.Quote(e.Section) + ": " + e.Reason.Error()
}

func (e *InvalidRuleError) Unwrap() error { return e.Reason }
