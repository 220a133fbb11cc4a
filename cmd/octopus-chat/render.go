package main

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"octopus/internal/app/dto"
	"octopus/internal/domain/chat"
)

const previewWidth = 48

func renderInbox(w io.Writer, list dto.ConversationList) {
	if len(list.Items) == 0 {
		fmt.Fprintln(w, "No conversations yet.")
		return
	}
	fmt.Fprintf(w, "%d unread\n", list.TotalUnread)
	for _, c := range list.Items {
		marker := " "
		if c.CounterpartyID == list.Selected {
			marker = ">"
		}
		unread := ""
		if c.UnreadCount > 0 {
			unread = fmt.Sprintf("(%d)", c.UnreadCount)
		}
		preview := "-"
		if c.LastMessage != nil {
			preview = truncate(c.LastMessage.Content, previewWidth)
		}
		fmt.Fprintf(w, "%s %-24s %-5s %s  [%s]\n", marker, truncate(c.DisplayName, 24), unread, preview, c.CounterpartyID)
	}
}

func renderThread(w io.Writer, t dto.Thread, viewer chat.Role) {
	if len(t.Messages) == 0 {
		fmt.Fprintln(w, "No messages yet.")
	}
	for _, bucket := range t.Buckets {
		fmt.Fprintf(w, "--- %s ---\n", bucket.Label)
		for _, m := range bucket.Messages {
			who := "them"
			if m.SenderRole == string(viewer) {
				who = "you"
			}
			status := ""
			if strings.HasPrefix(m.ID, chat.TempIDPrefix) {
				status = " (sending)"
			}
			fmt.Fprintf(w, "%s %-4s %s%s\n", m.CreatedAt.Format("15:04"), who, m.Content, status)
		}
	}
	if !t.CanSend {
		fmt.Fprintln(w, "Waiting for the company to write first.")
	}
}

func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-1]) + "…"
}
