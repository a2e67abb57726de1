package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/karthikraju391/matchchat/chat"
	"github.com/karthikraju391/matchchat/client"
	"github.com/karthikraju391/matchchat/logger"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat <targetUserId>",
	Short: "Open a live conversation with another user",
	Long: `Loads the conversation history, joins the live room and prints every new
message. Type a line to send it. Commands: /refresh reloads history,
/reconnect reopens a dropped connection, /quit leaves.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := clientConfig(cmd)
		if err != nil {
			return err
		}
		dialer, err := client.NewWSDialer(cfg.Client.ServerURL, nil)
		if err != nil {
			return err
		}
		self := identity(cmd)
		c := chat.NewController(client.NewHistoryClient(cfg.Client, nil), dialer, self)
		defer c.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		target := args[0]
		if err := c.Open(ctx, target); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		p := newPrinter(out, self.ID)
		p.print(c.Snapshot().Messages)

		lines := make(chan string)
		go readLines(cmd.InOrStdin(), lines)

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-c.Updates():
				snap := c.Snapshot()
				p.print(snap.Messages)
				if snap.State == chat.StateClosed {
					fmt.Fprintln(out, "-- disconnected, type /reconnect to rejoin")
				}
			case err := <-c.Errors():
				fmt.Fprintf(os.Stderr, "! %v\n", err)
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if quit := handleLine(ctx, c, target, line); quit {
					return nil
				}
			}
		}
	},
}

// handleLine runs one line of input and reports whether the user asked to
// leave.
func handleLine(ctx context.Context, c *chat.Controller, target, line string) bool {
	switch strings.TrimSpace(line) {
	case "/quit":
		return true
	case "/refresh":
		if err := c.Refresh(ctx); err != nil && !errors.Is(err, chat.ErrHistoryUnavailable) {
			fmt.Fprintf(os.Stderr, "! %v\n", err)
		}
	case "/reconnect":
		if err := c.Open(ctx, target); err != nil {
			logger.Debug("chat_reconnect_failed", "error", err)
		}
	default:
		// failures arrive on the error signal
		_ = c.Send(line)
	}
	return false
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- sc.Text()
	}
}

// printer writes each log entry once, in log order.
type printer struct {
	w       io.Writer
	self    string
	printed map[string]struct{}
}

func newPrinter(w io.Writer, self string) *printer {
	return &printer{w: w, self: self, printed: make(map[string]struct{})}
}

func (p *printer) print(msgs []chat.Message) {
	for _, m := range msgs {
		k := fmt.Sprintf("%s|%d|%s", m.SenderID, m.Timestamp.UnixNano(), m.Body)
		if _, ok := p.printed[k]; ok {
			continue
		}
		p.printed[k] = struct{}{}
		fmt.Fprintln(p.w, formatMessage(m, p.self))
	}
}

func formatMessage(m chat.Message, self string) string {
	who := m.SenderName
	if who == "" {
		who = m.SenderID
	}
	if m.SenderID == self {
		who = "you"
	}
	return fmt.Sprintf("[%s] %s: %s", m.Timestamp.Local().Format(time.Kitchen), who, m.Body)
}
