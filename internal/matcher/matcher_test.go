package matcher

import (
	"strings"
	"testing"
)

func TestIsSatisfied(t *testing.T) {
	cases := []struct {
		name      string
		condition string
		milestone string
		want      bool
	}{
		{"full overlap", "pay upon delivery", "we will pay upon delivery of goods", true},
		{"no overlap", "quarterly audit passed", "milestone done", false},
		{"three of five", "deploy api docs tests ci", "deploy the api and docs", true},
		{"two of five", "deploy api docs tests ci", "deploy the api", false},
		{"substring tokens count", "a cat", "concatenate", true},
		{"empty condition", "", "anything at all", false},
		{"whitespace condition", "   \t ", "anything", false},
		{"empty milestone", "ship it", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsSatisfied(tc.condition, tc.milestone); got != tc.want {
				t.Fatalf("IsSatisfied(%q, %q) = %v, want %v", tc.condition, tc.milestone, got, tc.want)
			}
		})
	}
}

func TestIsSatisfiedIgnoresCase(t *testing.T) {
	pairs := [][2]string{
		{"Pay Upon Delivery", "we will pay upon delivery"},
		{"quarterly audit passed", "QUARTERLY AUDIT"},
		{"Design Mockups Approved", "mockups were approved by design"},
		{"logo", "nothing relevant"},
	}
	for _, p := range pairs {
		base := IsSatisfied(p[0], p[1])
		variants := [][2]string{
			{strings.ToUpper(p[0]), p[1]},
			{strings.ToLower(p[0]), strings.ToUpper(p[1])},
			{p[0], strings.ToLower(p[1])},
		}
		for _, v := range variants {
			if IsSatisfied(v[0], v[1]) != base {
				t.Fatalf("case changed result for %q / %q", v[0], v[1])
			}
		}
	}
}
