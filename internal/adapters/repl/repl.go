package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"enrollment-reconciler/internal/adapters/cli"
)

var errExit = errors.New("exit")

// Console is an interactive operator session over the one-shot commands.
// Writes to the ledger are confirmed after showing the inspect trace.
type Console struct {
	Runner *cli.Runner
	In     *bufio.Reader
	Out    io.Writer
	Mode   string
}

// Run reads commands until EOF or /exit.
func (c *Console) Run(ctx context.Context) {
	fmt.Fprintln(c.Out, "Enrollment Reconciler")
	fmt.Fprintf(c.Out, "Mode: %s\n", c.Mode)
	fmt.Fprintln(c.Out, "Type /help for commands.")
	fmt.Fprintln(c.Out, strings.Repeat("-", 70))

	for {
		fmt.Fprint(c.Out, "\n> ")
		input, err := c.In.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			if err != nil {
				return
			}
			continue
		}

		if err := c.dispatch(ctx, input); err != nil {
			if errors.Is(err, errExit) {
				fmt.Fprintln(c.Out, "Goodbye!")
				return
			}
			fmt.Fprintf(c.Out, "Error: %v\n", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Console) dispatch(ctx context.Context, input string) error {
	tokens := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(tokens) == 0 {
		return nil
	}
	cmd := strings.ToLower(tokens[0])
	args := tokens[1:]

	switch cmd {
	case "exit", "quit", "e", "q":
		return errExit
	case "help", "h":
		fmt.Fprintln(c.Out, cli.Usage)
		fmt.Fprintln(c.Out, "\n  exit                                  leave the console")
		return nil
	case "reconcile", "rec":
		return c.confirmReconcile(ctx, args)
	case "run", "r":
		if !c.ask("Run the full reconciliation now? (y/n): ") {
			fmt.Fprintln(c.Out, "Cancelled.")
			return nil
		}
	}
	return c.Runner.Run(ctx, append([]string{cmd}, args...))
}

// confirmReconcile prints the trace and asks before writing.
func (c *Console) confirmReconcile(ctx context.Context, args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(c.Out, "Usage: /reconcile <tenant> <order> [source]")
		return nil
	}
	if err := c.Runner.Run(ctx, append([]string{"inspect"}, args...)); err != nil {
		return err
	}
	if !c.ask("\nWrite these ledger entries? (y/n): ") {
		fmt.Fprintln(c.Out, "Cancelled.")
		return nil
	}
	return c.Runner.Run(ctx, append([]string{"reconcile"}, args...))
}

func (c *Console) ask(prompt string) bool {
	fmt.Fprint(c.Out, prompt)
	choice, _ := c.In.ReadString('\n')
	choice = strings.TrimSpace(strings.ToLower(choice))
	return choice == "y" || choice == "yes"
}
