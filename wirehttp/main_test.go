package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunCLI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no_args", nil, 1},
		{"help", []string{"help"}, 0},
		{"fetch_help", []string{"fetch", "--help"}, 0},
		{"show_help", []string{"show", "-h"}, 0},
		{"unknown", []string{"fetc"}, 1},
		{"fetch_missing_url", []string{"fetch"}, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, runCLI(tc.args))
		})
	}
}
