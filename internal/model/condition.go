package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Operator is a leaf comparison applied to a single payload field.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpContains       Operator = "contains"
	OpGreaterThan    Operator = "greater_than"
	OpLessThan       Operator = "less_than"
	OpMatchesPattern Operator = "matches_pattern"
)

// String returns the string representation of the operator.
func (o Operator) String() string {
	return string(o)
}

// IsValid checks whether the operator is a known value.
func (o Operator) IsValid() bool {
	switch o {
	case OpEquals, OpContains, OpGreaterThan, OpLessThan, OpMatchesPattern:
		return true
	}
	return false
}

// FieldType is the declared type of a payload field in a source schema.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldBool   FieldType = "bool"
)

// Condition is a predicate tree evaluated against an event payload.
// Exactly one of All, Any, Not, or the leaf triple (Field, Operator, Value)
// may be set; ValidateCondition enforces this shape eagerly at listener
// creation so evaluation never has to deal with malformed trees.
type Condition struct {
	All []Condition `json:"all,omitempty"`
	Any []Condition `json:"any,omitempty"`
	Not *Condition  `json:"not,omitempty"`

	Field    string   `json:"field,omitempty"`
	Operator Operator `json:"operator,omitempty"`
	Value    any      `json:"value,omitempty"`
}

// IsLeaf reports whether the condition is a leaf comparison.
func (c *Condition) IsLeaf() bool {
	return len(c.All) == 0 && len(c.Any) == 0 && c.Not == nil
}

// ValidateCondition checks a condition tree against the payload fields
// declared for a source. Unknown fields, unknown operators, operator/type
// mismatches, and ambiguous node shapes are all rejected here, never at
// evaluation time. fields maps payload field name to its declared type.
func ValidateCondition(c *Condition, fields map[string]FieldType) error {
	var ve ValidationError
	validateConditionNode(c, fields, "condition", &ve)
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

func validateConditionNode(c *Condition, fields map[string]FieldType, path string, ve *ValidationError) {
	set := 0
	if len(c.All) > 0 {
		set++
	}
	if len(c.Any) > 0 {
		set++
	}
	if c.Not != nil {
		set++
	}
	leaf := c.Field != "" || c.Operator != "" || c.Value != nil
	if leaf {
		set++
	}
	if set != 1 {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   path,
			Message: "must set exactly one of all, any, not, or a field comparison",
		})
		return
	}

	switch {
	case len(c.All) > 0:
		for i := range c.All {
			validateConditionNode(&c.All[i], fields, fmt.Sprintf("%s.all[%d]", path, i), ve)
		}
	case len(c.Any) > 0:
		for i := range c.Any {
			validateConditionNode(&c.Any[i], fields, fmt.Sprintf("%s.any[%d]", path, i), ve)
		}
	case c.Not != nil:
		validateConditionNode(c.Not, fields, path+".not", ve)
	default:
		validateConditionLeaf(c, fields, path, ve)
	}
}

func validateConditionLeaf(c *Condition, fields map[string]FieldType, path string, ve *ValidationError) {
	if c.Field == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: path + ".field", Message: "is required"})
		return
	}
	if !c.Operator.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   path + ".operator",
			Message: fmt.Sprintf("invalid value %q", c.Operator),
		})
		return
	}

	ft, known := fields[c.Field]
	if !known {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   path + ".field",
			Message: fmt.Sprintf("unknown payload field %q for this source", c.Field),
		})
		return
	}

	switch c.Operator {
	case OpGreaterThan, OpLessThan:
		if ft != FieldNumber {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   path + ".operator",
				Message: fmt.Sprintf("%s requires a number field, %q is %s", c.Operator, c.Field, ft),
			})
		}
		if _, ok := asNumber(c.Value); !ok {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   path + ".value",
				Message: fmt.Sprintf("%s requires a numeric value", c.Operator),
			})
		}
	case OpContains:
		if ft != FieldString {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   path + ".operator",
				Message: fmt.Sprintf("contains requires a string field, %q is %s", c.Field, ft),
			})
		}
	case OpMatchesPattern:
		if ft != FieldString {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   path + ".operator",
				Message: fmt.Sprintf("matches_pattern requires a string field, %q is %s", c.Field, ft),
			})
		}
		pat, ok := c.Value.(string)
		if !ok {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   path + ".value",
				Message: "matches_pattern requires a string pattern",
			})
			return
		}
		if _, err := regexp.Compile(pat); err != nil {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   path + ".value",
				Message: fmt.Sprintf("invalid pattern: %v", err),
			})
		}
	}
}

// Evaluate applies the condition tree to an event payload. A leaf that
// references a field absent from the payload evaluates to false rather than
// erroring; conditions degrade gracefully on partial payloads.
func (c *Condition) Evaluate(payload map[string]any) bool {
	switch {
	case len(c.All) > 0:
		for i := range c.All {
			if !c.All[i].Evaluate(payload) {
				return false
			}
		}
		return true
	case len(c.Any) > 0:
		for i := range c.Any {
			if c.Any[i].Evaluate(payload) {
				return true
			}
		}
		return false
	case c.Not != nil:
		return !c.Not.Evaluate(payload)
	default:
		return c.evaluateLeaf(payload)
	}
}

func (c *Condition) evaluateLeaf(payload map[string]any) bool {
	got, present := payload[c.Field]
	if !present {
		return false
	}

	switch c.Operator {
	case OpEquals:
		return looseEquals(got, c.Value)
	case OpContains:
		s, ok := asString(got)
		if !ok {
			return false
		}
		sub, ok := asString(c.Value)
		if !ok {
			return false
		}
		return strings.Contains(s, sub)
	case OpGreaterThan:
		a, aok := asNumber(got)
		b, bok := asNumber(c.Value)
		return aok && bok && a > b
	case OpLessThan:
		a, aok := asNumber(got)
		b, bok := asNumber(c.Value)
		return aok && bok && a < b
	case OpMatchesPattern:
		s, ok := asString(got)
		if !ok {
			return false
		}
		pat, ok := c.Value.(string)
		if !ok {
			return false
		}
		// Patterns are compile-checked at listener creation; a failure here
		// means the tree bypassed validation, so fail closed.
		re, err := regexp.Compile(pat)
		if err != nil {
			return false
		}
		return re.MatchString(s)
	}
	return false
}

// looseEquals compares two payload values, treating numeric types as
// interchangeable (JSON decoding yields float64 for all numbers).
func looseEquals(a, b any) bool {
	if an, ok := asNumber(a); ok {
		if bn, ok := asNumber(b); ok {
			return an == bn
		}
		return false
	}
	return a == b
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		// Schema-typed number fields may arrive as strings from loosely
		// typed webhook payloads.
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
