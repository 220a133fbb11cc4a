package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"octopus/internal/app/dto"
	"octopus/internal/app/poll"
	"octopus/internal/domain/chat"
)

var threadWatch bool

var threadCmd = &cobra.Command{
	Use:   "thread <counterparty>",
	Short: "Open the conversation with one counterparty",
	Long: `Print the conversation grouped by day and mark incoming messages read.
With --watch the thread refreshes on POLL_INTERVAL and every line typed on
stdin is sent as a message.`,
	Args: cobra.ExactArgs(1),
	RunE: runThread,
}

var sendCmd = &cobra.Command{
	Use:   "send <counterparty> <text>",
	Short: "Send one message",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSend,
}

func init() {
	threadCmd.Flags().BoolVarP(&threadWatch, "watch", "w", false, "keep refreshing and read messages from stdin")
}

func runThread(cmd *cobra.Command, args []string) error {
	loc, err := location()
	if err != nil {
		return err
	}
	ctx, backend, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer backend.close()

	driver, view, err := backend.openThread(ctx, strings.TrimSpace(args[0]), loc)
	if err != nil {
		return describe(err, args[0])
	}
	out := cmd.OutOrStdout()
	if !threadWatch {
		renderThread(out, view, backend.viewer.Role)
		return nil
	}

	p := &poll.Poller[dto.Thread]{
		Interval: cfg.PollInterval,
		Fetch:    driver.Refresh,
		Apply: func(t dto.Thread) {
			fmt.Fprintln(out, strings.Repeat("=", 60))
			renderThread(out, t, backend.viewer.Role)
		},
		OnError: func(err error) {
			logger.Warn("thread refresh failed", "error", err)
		},
	}
	g, gctx := errgroup.WithContext(ctx)
	lines := readLines(gctx, cmd.InOrStdin())
	g.Go(func() error { return p.Run(gctx) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case text, ok := <-lines:
				if !ok {
					return errInputClosed
				}
				if _, err := driver.Send(gctx, text); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), describe(err, args[0]))
					continue
				}
				p.Trigger(gctx)
			}
		}
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errInputClosed) {
		return err
	}
	return nil
}

var errInputClosed = errors.New("input closed")

// readLines forwards non-blank lines from r until EOF or ctx is done. A read
// blocked on a terminal only returns with the next line or process exit.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			text := scanner.Text()
			if strings.TrimSpace(text) == "" {
				continue
			}
			select {
			case out <- text:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func runSend(cmd *cobra.Command, args []string) error {
	loc, err := location()
	if err != nil {
		return err
	}
	ctx, backend, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer backend.close()

	counterparty := strings.TrimSpace(args[0])
	driver, _, err := backend.openThread(ctx, counterparty, loc)
	if err != nil {
		return describe(err, counterparty)
	}
	msg, err := driver.Send(ctx, strings.Join(args[1:], " "))
	if err != nil {
		return describe(err, counterparty)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s at %s.\n", msg.ID, msg.CreatedAt.In(loc).Format("15:04"))
	return nil
}

func describe(err error, counterparty string) error {
	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		return fmt.Errorf("no conversation with %s", counterparty)
	case errors.Is(err, chat.ErrAwaitingFirstContact):
		return errors.New("the company has not written yet, you can reply once they do")
	case errors.Is(err, chat.ErrEmptyMessage):
		return errors.New("message is empty")
	default:
		return err
	}
}
