package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/orderlink/internal/messaging"
)

// newRootCommand constructs the root command and registers watch, send and
// console.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "orderlink",
		Short:         "Order tracking, chat and review messaging client",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().String("config", "", "path to YAML config (default: $ORDERLINK_CONFIG or built-in defaults)")
	root.PersistentFlags().String("status-addr", "", "serve /api/v1/health and /api/v1/stats on this address")

	root.AddCommand(
		newWatchCommand(),
		newSendCommand(),
		newConsoleCommand(),
	)
	return root
}

// openFromFlags opens the app using the --config flag.
func openFromFlags(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	statusAddr, _ := cmd.Flags().GetString("status-addr")
	return openApp(cmd.Context(), path, statusAddr, cmd.ErrOrStderr())
}

// newWatchCommand constructs the `watch` command.
func newWatchCommand() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch <destination>...",
		Short: "Print messages arriving on one or more destinations",
		Example: `  orderlink watch /topic/order/42 /topic/order/42/location
  orderlink watch --order 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			order, _ := cmd.Flags().GetString("order")

			dests := append([]string(nil), args...)
			if order != "" {
				d := messaging.Destinations{}
				dests = append(dests, d.OrderStatus(order), d.CourierLocation(order), d.OrderChat(order))
			}
			if len(dests) == 0 {
				return fmt.Errorf("watch: at least one destination or --order is required")
			}

			a, err := openFromFlags(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			return watch(cmd.Context(), a.client, dests, count, cmd.OutOrStdout())
		},
	}
	watchCmd.Flags().Int("count", 0, "exit after this many messages (0 = until interrupted)")
	watchCmd.Flags().String("order", "", "watch status, courier location and chat of this order")
	return watchCmd
}

// printed is the JSON line written for each received message.
type printed struct {
	Destination string `json:"destination"`
	ID          string `json:"id,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Body        any    `json:"body"`
}

// watch subscribes to dests and writes one JSON line per message to out
// until ctx ends or count messages have arrived.
func watch(ctx context.Context, client *messaging.Client, dests []string, count int, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan printed, 64)
	for _, dest := range dests {
		sub, err := client.Subscribe(ctx, dest, func(hctx context.Context, msg messaging.Message) error {
			p := printed{Destination: msg.Destination, ID: msg.ID, ContentType: msg.ContentType()}
			var body any
			if err := msg.Decode(&body); err != nil {
				p.Body = string(msg.Body)
			} else {
				p.Body = body
			}
			select {
			case lines <- p:
			case <-hctx.Done():
			case <-ctx.Done():
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", dest, err)
		}
		defer sub.Unsubscribe()
	}

	enc := json.NewEncoder(out)
	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-lines:
			if err := enc.Encode(p); err != nil {
				return err
			}
			seen++
			if count > 0 && seen >= count {
				return nil
			}
		}
	}
}

// newSendCommand constructs the `send` command.
func newSendCommand() *cobra.Command {
	sendCmd := &cobra.Command{
		Use:   "send <destination> <json>",
		Short: "Send one JSON payload, encoded with the configured content type",
		Example: `  orderlink send /app/order/review '{"orderId":"42","rating":5}'
  orderlink send --review 42 --rating 5 --comment "quick delivery"`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			dest, payload, err := sendTarget(cmd, args)
			if err != nil {
				return err
			}

			a, err := openFromFlags(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := a.client.Send(ctx, dest, payload); err != nil {
				return fmt.Errorf("sending to %s: %w", dest, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent to %s\n", dest)
			return nil
		},
	}
	sendCmd.Flags().Duration("timeout", 10*time.Second, "how long to wait for the broker")
	sendCmd.Flags().String("review", "", "submit a review for this order id instead of a raw payload")
	sendCmd.Flags().Int("rating", 0, "review rating (with --review)")
	sendCmd.Flags().String("comment", "", "review comment (with --review)")
	return sendCmd
}

// review is the payload of a review submission.
type review struct {
	OrderID string `json:"orderId" cbor:"orderId"`
	Rating  int    `json:"rating" cbor:"rating"`
	Comment string `json:"comment,omitempty" cbor:"comment,omitempty"`
}

// sendTarget resolves the destination and payload from args or the review flags.
func sendTarget(cmd *cobra.Command, args []string) (string, any, error) {
	orderID, _ := cmd.Flags().GetString("review")
	if orderID != "" {
		if len(args) != 0 {
			return "", nil, fmt.Errorf("send: --review takes no positional arguments")
		}
		rating, _ := cmd.Flags().GetInt("rating")
		if rating < 1 || rating > 5 {
			return "", nil, fmt.Errorf("send: --rating must be between 1 and 5")
		}
		comment, _ := cmd.Flags().GetString("comment")
		return messaging.Destinations{}.ReviewSubmit(), review{OrderID: orderID, Rating: rating, Comment: comment}, nil
	}

	if len(args) != 2 {
		return "", nil, fmt.Errorf("send: expected <destination> <json>")
	}
	payload, err := parsePayload(args[1])
	if err != nil {
		return "", nil, err
	}
	return args[0], payload, nil
}

// parsePayload decodes a JSON argument so it can be re-encoded with the
// configured codec.
func parsePayload(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("payload is not valid JSON: %w", err)
	}
	return v, nil
}

// newConsoleCommand constructs the `console` command.
func newConsoleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive console: subscribe, unsubscribe and send over one session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openFromFlags(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			con, err := newConsole(a.client)
			if err != nil {
				return err
			}
			return con.Run(cmd.Context())
		},
	}
}
