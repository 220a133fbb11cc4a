package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"octopus/internal/app/dto"
	"octopus/internal/app/poll"
	grpcapi "octopus/internal/infra/grpc"
)

var (
	inboxWatch  bool
	inboxWith   string
	inboxStatus string
)

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "List conversations grouped by counterparty",
	Long: `List every counterparty you share an application with, newest activity
first, with unread counts. --with opens one conversation below the list;
--watch refreshes on POLL_INTERVAL until interrupted.`,
	RunE: runInbox,
}

func init() {
	inboxCmd.Flags().BoolVarP(&inboxWatch, "watch", "w", false, "keep refreshing")
	inboxCmd.Flags().StringVar(&inboxWith, "with", "", "counterparty id to open")
	inboxCmd.Flags().StringVar(&inboxStatus, "status", "", "application status filter (default accepted)")
}

func runInbox(cmd *cobra.Command, args []string) error {
	ctx, backend, err := openBackend(cmd.Context())
	if err != nil {
		return err
	}
	defer backend.close()

	req := &grpcapi.ListConversationsRequest{
		Status:   strings.TrimSpace(inboxStatus),
		With:     strings.TrimSpace(inboxWith),
		TimeZone: tzFlag,
	}
	out := cmd.OutOrStdout()
	show := func(list dto.ConversationList) {
		renderInbox(out, list)
		if list.Thread != nil {
			fmt.Fprintln(out)
			renderThread(out, *list.Thread, backend.viewer.Role)
		} else if req.With != "" {
			fmt.Fprintf(out, "\nNo conversation with %s.\n", req.With)
		}
	}
	fetch := func(ctx context.Context) (dto.ConversationList, error) {
		list, err := backend.api.ListConversations(ctx, req)
		if err != nil {
			return dto.ConversationList{}, err
		}
		return *list, nil
	}

	if !inboxWatch {
		list, err := fetch(ctx)
		if err != nil {
			return err
		}
		show(list)
		return nil
	}
	p := &poll.Poller[dto.ConversationList]{
		Interval: cfg.PollInterval,
		Fetch:    fetch,
		Apply: func(list dto.ConversationList) {
			fmt.Fprintln(out, strings.Repeat("=", 60))
			show(list)
		},
		OnError: func(err error) {
			logger.Warn("inbox refresh failed", "error", err)
		},
	}
	return p.Run(ctx)
}
