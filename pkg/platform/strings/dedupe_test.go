package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil stays nil", nil, nil},
		{"trims and drops empties", []string{" a ", "", "  ", "b"}, []string{"a", "b"}},
		{"keeps first occurrence", []string{"a", "b", "a", "b"}, []string{"a", "b"}},
		{"duplicate only after trim", []string{"a", " a"}, []string{"a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DedupeAndTrim(tc.in))
		})
	}
}
