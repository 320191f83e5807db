// Command notify is the operator CLI for the billing backend: sign in, send
// segmented SMS campaigns, text bills and browse the SMS history.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: notify <command> [flags]

commands:
  login       sign in and store the session
  logout      clear the stored session
  send        send a message to a customer segment
  history     list sent messages
  send-bill   text the current bill to one customer
  send-bills  text bills to every customer

run "notify <command> -h" for the flags of a command.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	commands := map[string]func(context.Context, *cli, []string) error{
		"login":      loginCmd,
		"logout":     logoutCmd,
		"send":       sendCmd,
		"history":    historyCmd,
		"send-bill":  sendBillCmd,
		"send-bills": sendBillsCmd,
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	c := newCLI(stdin, stdout, stderr)
	defer c.close()
	if err := cmd(ctx, c, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return 2
		}
		fmt.Fprintln(stderr, "Error:", describe(err))
		return 1
	}
	return 0
}
