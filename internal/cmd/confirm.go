package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/3leaps/casegen/pkg/view"
)

// promptConfirmer asks on out and reads the answer from in. Anything but
// y or yes declines.
type promptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
	yes bool
}

func newConfirmer(in io.Reader, out io.Writer, yes bool) view.Confirmer {
	return &promptConfirmer{in: bufio.NewReader(in), out: out, yes: yes}
}

func (c *promptConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	if c.yes {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, _ = fmt.Fprintf(c.out, "%s [y/N]: ", prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
