package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/nerrad567/orderlink/internal/messaging"
)

// console is the interactive command loop.
type console struct {
	client *messaging.Client
	rl     *readline.Instance
	out    io.Writer

	mu   sync.Mutex
	subs map[string]*messaging.Subscription
}

// errQuit ends the console loop.
var errQuit = errors.New("quit")

// newConsole creates a console reading from the terminal.
func newConsole(client *messaging.Client) (*console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "orderlink> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := newConsoleWriter(client, rl.Stdout())
	c.rl = rl
	client.OnStateChange(func(sc messaging.StateChange) {
		fmt.Fprintf(c.out, "* %s -> %s\n", sc.From, sc.To)
	})
	return c, nil
}

// newConsoleWriter creates a console without a terminal, writing to out.
func newConsoleWriter(client *messaging.Client, out io.Writer) *console {
	return &console{
		client: client,
		out:    out,
		subs:   make(map[string]*messaging.Subscription),
	}
}

// Run reads commands until quit, EOF or ctx ends.
func (c *console) Run(ctx context.Context) error {
	defer c.rl.Close()

	c.printHelp()

	go func() {
		<-ctx.Done()
		c.rl.Close()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}

		if err := c.exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

// exec runs one console command line.
func (c *console) exec(ctx context.Context, line string) error {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
		return nil

	case "quit", "exit":
		return errQuit

	case "sub", "subscribe":
		if len(args) != 1 {
			return fmt.Errorf("usage: sub <destination>")
		}
		return c.subscribe(ctx, args[0])

	case "unsub", "unsubscribe":
		if len(args) != 1 {
			return fmt.Errorf("usage: unsub <destination>")
		}
		return c.unsubscribe(args[0])

	case "send":
		if len(args) < 2 {
			return fmt.Errorf("usage: send <destination> <json>")
		}
		payload, err := parsePayload(tail(line, 2))
		if err != nil {
			return err
		}
		if err := c.client.Send(ctx, args[0], payload); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "sent to %s\n", args[0])
		return nil

	case "list", "ls":
		for _, dest := range c.destinations() {
			fmt.Fprintln(c.out, dest)
		}
		return nil

	case "state", "status":
		st := c.client.Stats()
		fmt.Fprintf(c.out, "state=%s destinations=%d subscriptions=%d pending_sends=%d in=%d out=%d dropped=%d reconnects=%d\n",
			st.State, st.Destinations, st.Subscriptions, st.PendingSends,
			st.FramesIn, st.FramesOut, st.DroppedFrames, st.Reconnects)
		if err := c.client.LastError(); err != nil {
			fmt.Fprintf(c.out, "last error: %v\n", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q (type 'help')", cmd)
	}
}

// tail returns line after its first n space-separated words, so that JSON
// payloads keep their inner spacing.
func tail(line string, n int) string {
	rest := strings.TrimSpace(line)
	for range n {
		_, rest, _ = strings.Cut(rest, " ")
		rest = strings.TrimSpace(rest)
	}
	return rest
}

func (c *console) subscribe(ctx context.Context, dest string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[dest]; ok {
		return fmt.Errorf("already subscribed to %s", dest)
	}

	sub, err := c.client.Subscribe(ctx, dest, func(_ context.Context, msg messaging.Message) error {
		fmt.Fprintf(c.out, "[%s] %s\n", msg.Destination, msg.Body)
		return nil
	})
	if err != nil {
		return err
	}
	c.subs[dest] = sub
	fmt.Fprintf(c.out, "subscribed to %s\n", dest)
	return nil
}

func (c *console) unsubscribe(dest string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[dest]
	if !ok {
		return fmt.Errorf("not subscribed to %s", dest)
	}
	sub.Unsubscribe()
	delete(c.subs, dest)
	fmt.Fprintf(c.out, "unsubscribed from %s\n", dest)
	return nil
}

func (c *console) destinations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	dests := make([]string, 0, len(c.subs))
	for d := range c.subs {
		dests = append(dests, d)
	}
	sort.Strings(dests)
	return dests
}

func (c *console) printHelp() {
	fmt.Fprint(c.out, `Commands:
  sub <destination>           subscribe and print messages
  unsub <destination>         drop the subscription
  send <destination> <json>   send a payload
  list                        list console subscriptions
  state                       connection state and counters
  help                        show this help
  quit                        exit
`)
}
