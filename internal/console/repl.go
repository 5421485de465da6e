package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Run reads commands from r line by line and writes replies to w until r is
// exhausted, "quit" is entered or ctx is cancelled.
func (h *Handler) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-stop:
				return
			}
		}
		errc <- sc.Err()
		close(lines)
	}()

	fmt.Fprint(w, "> ")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "quit", "exit":
				return nil
			case "":
			default:
				if reply := h.Handle(line); reply != "" {
					fmt.Fprintln(w, strings.TrimRight(reply, "\n"))
				}
			}
			fmt.Fprint(w, "> ")
		}
	}
}
