package timing

import (
	"fmt"
	"reflect"
	"strings"
)

// Condition is a predicate waited on by [Pause] and friends.
type Condition interface {
	// Test reports whether the condition is currently satisfied.
	Test() bool
	// String describes the condition; it is used in timeout errors.
	String() string
}

// Doner is implemented by conditions holding resources that must be released
// once waiting ends, successfully or not.
type Doner interface {
	Done()
}

// Cond is a function-backed [Condition].
type Cond struct {
	// Description is returned by String.
	Description string
	// Check implements Test. It must not be nil.
	Check func() bool
	// Cleanup, if non-nil, is called by Done.
	Cleanup func()
}

var (
	_ Condition = (*Cond)(nil)
	_ Doner     = (*Cond)(nil)
)

// NewCondition returns a condition described by description and satisfied
// when check returns true.
func NewCondition(description string, check func() bool) *Cond {
	return &Cond{Description: description, Check: check}
}

func (c *Cond) Test() bool { return c.Check() }

func (c *Cond) String() string { return c.Description }

// Done runs the cleanup function, if any.
func (c *Cond) Done() {
	if c.Cleanup != nil {
		c.Cleanup()
	}
}

// Conditions is shorthand for building the slice passed to [PauseAll].
func Conditions(conditions ...Condition) []Condition {
	return conditions
}

func done(c Condition) {
	if d, ok := c.(Doner); ok {
		d.Done()
	}
}

func satisfied(conditions []Condition) bool {
	for _, c := range conditions {
		if !c.Test() {
			return false
		}
	}
	return true
}

func describe(conditions []Condition) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, c := range conditions {
		if i > 0 {
			b.WriteString(", ")
		}
		if isNil(c) {
			b.WriteString("<nil>")
			continue
		}
		b.WriteString(c.String())
	}
	b.WriteByte(']')
	return b.String()
}

// validate rejects the slices PauseAll cannot wait on. It runs before any
// waiting begins.
func validate(conditions []Condition) error {
	if conditions == nil {
		return ErrNilConditions
	}
	if len(conditions) == 0 {
		return ErrEmptyConditions
	}
	for _, c := range conditions {
		if isNil(c) {
			return fmt.Errorf("%w: the conditions %s contain one or more nil values", ErrNilCondition, describe(conditions))
		}
	}
	return nil
}

// isNil also catches a nil pointer stored in a non-nil interface, e.g.
// (*Cond)(nil).
func isNil(c Condition) bool {
	if c == nil {
		return true
	}
	switch v := reflect.ValueOf(c); v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
