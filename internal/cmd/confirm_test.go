package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptConfirmer(t *testing.T) {
	tests := []struct {
		name  string
		input string
		yes   bool
		want  bool
	}{
		{name: "y accepts", input: "y\n", want: true},
		{name: "yes accepts any case", input: "YES\n", want: true},
		{name: "n declines", input: "n\n", want: false},
		{name: "empty declines", input: "\n", want: false},
		{name: "eof declines", input: "", want: false},
		{name: "answer without newline", input: "y", want: true},
		{name: "yes flag skips prompt", input: "", yes: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := newConfirmer(strings.NewReader(tt.input), &out, tt.yes)

			ok, err := c.Confirm(context.Background(), "Delete 2 cases?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			if tt.yes {
				assert.Empty(t, out.String())
			} else {
				assert.Equal(t, "Delete 2 cases? [y/N]: ", out.String())
			}
		})
	}
}

func TestPromptConfirmerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := newConfirmer(strings.NewReader("y\n"), &bytes.Buffer{}, false).Confirm(ctx, "Delete?")
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}
