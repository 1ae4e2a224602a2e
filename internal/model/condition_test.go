package model

import (
	"testing"
)

var testFields = map[string]FieldType{
	"entity":      FieldString,
	"state":       FieldString,
	"temperature": FieldNumber,
	"open":        FieldBool,
}

func leaf(field string, op Operator, value any) Condition {
	return Condition{Field: field, Operator: op, Value: value}
}

func TestConditionEvaluate(t *testing.T) {
	payload := map[string]any{
		"entity":      "person.alice",
		"state":       "home",
		"temperature": 21.5,
		"open":        true,
	}

	for _, tc := range []struct {
		name string
		cond Condition
		want bool
	}{
		{"EqualsMatch", leaf("state", OpEquals, "home"), true},
		{"EqualsMismatch", leaf("state", OpEquals, "away"), false},
		{"EqualsBool", leaf("open", OpEquals, true), true},
		{"EqualsNumericCrossType", leaf("temperature", OpEquals, 21.5), true},
		{"Contains", leaf("entity", OpContains, "alice"), true},
		{"ContainsMiss", leaf("entity", OpContains, "bob"), false},
		{"GreaterThan", leaf("temperature", OpGreaterThan, 20), true},
		{"GreaterThanMiss", leaf("temperature", OpGreaterThan, 25), false},
		{"LessThan", leaf("temperature", OpLessThan, 25), true},
		{"MatchesPattern", leaf("entity", OpMatchesPattern, `^person\.`), true},
		{"MatchesPatternMiss", leaf("entity", OpMatchesPattern, `^device\.`), false},
		{
			name: "AbsentFieldIsFalse",
			cond: leaf("battery", OpEquals, 100),
			want: false,
		},
		{
			name: "AndBothTrue",
			cond: Condition{All: []Condition{
				leaf("entity", OpEquals, "person.alice"),
				leaf("state", OpEquals, "home"),
			}},
			want: true,
		},
		{
			name: "AndOneFalse",
			cond: Condition{All: []Condition{
				leaf("entity", OpEquals, "person.alice"),
				leaf("state", OpEquals, "away"),
			}},
			want: false,
		},
		{
			name: "OrOneTrue",
			cond: Condition{Any: []Condition{
				leaf("state", OpEquals, "away"),
				leaf("temperature", OpGreaterThan, 20),
			}},
			want: true,
		},
		{
			name: "NotInverts",
			cond: Condition{Not: &Condition{Field: "state", Operator: OpEquals, Value: "away"}},
			want: true,
		},
		{
			name: "NotOverAbsentField",
			cond: Condition{Not: &Condition{Field: "battery", Operator: OpEquals, Value: 100}},
			want: true,
		},
		{
			name: "NestedTree",
			cond: Condition{All: []Condition{
				leaf("entity", OpMatchesPattern, `^person\.`),
				{Any: []Condition{
					leaf("state", OpEquals, "home"),
					leaf("temperature", OpLessThan, 5),
				}},
			}},
			want: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cond.Evaluate(payload); got != tc.want {
				t.Errorf("Evaluate() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConditionEvaluate_IntPayloadValues(t *testing.T) {
	// Webhook payloads decoded without UseNumber can still carry ints from
	// in-process submitters.
	payload := map[string]any{"temperature": 30}
	cond := leaf("temperature", OpGreaterThan, 21.0)
	if !cond.Evaluate(payload) {
		t.Error("expected int payload value to compare numerically")
	}
}

func TestValidateCondition(t *testing.T) {
	for _, tc := range []struct {
		name    string
		cond    Condition
		wantErr bool
	}{
		{"ValidLeaf", leaf("state", OpEquals, "home"), false},
		{"ValidTree", Condition{All: []Condition{
			leaf("state", OpEquals, "home"),
			{Not: &Condition{Field: "entity", Operator: OpContains, Value: "bob"}},
		}}, false},
		{"UnknownField", leaf("humidity", OpEquals, 40), true},
		{"UnknownOperator", Condition{Field: "state", Operator: "starts_with", Value: "h"}, true},
		{"EmptyNode", Condition{}, true},
		{"AmbiguousNode", Condition{
			All:   []Condition{leaf("state", OpEquals, "home")},
			Field: "state", Operator: OpEquals, Value: "home",
		}, true},
		{"GreaterThanOnString", leaf("state", OpGreaterThan, 5), true},
		{"GreaterThanNonNumericValue", leaf("temperature", OpGreaterThan, "warm"), true},
		{"ContainsOnNumber", leaf("temperature", OpContains, "2"), true},
		{"BadPattern", leaf("entity", OpMatchesPattern, "("), true},
		{"PatternOnNumber", leaf("temperature", OpMatchesPattern, ".*"), true},
		{"NestedInvalid", Condition{Any: []Condition{
			leaf("state", OpEquals, "home"),
			leaf("nope", OpEquals, 1),
		}}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCondition(&tc.cond, testFields)
			if tc.wantErr && err == nil {
				t.Error("ValidateCondition() = nil, want error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("ValidateCondition() = %v, want nil", err)
			}
		})
	}
}
