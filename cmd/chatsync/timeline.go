package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/adi-253/chatsync/internal/display"
)

func newTimelineCmd() *cobra.Command {
	var (
		firstUnread string
		limit       int
		collapse    bool
	)
	cmd := &cobra.Command{
		Use:   "timeline <chat-id>",
		Short: "Print one conversation's display sequence as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine(nil)
			if err != nil {
				return err
			}
			defer eng.store.Close()

			chatID := args[0]
			if err := eng.store.LoadMessages(cmd.Context(), chatID, limit); err != nil {
				return err
			}
			opts := display.Options{FirstUnreadID: firstUnread}
			opts.CurrentUserID, _ = eng.session.CurrentUserID()
			if collapse {
				opts.Avatars = display.AvatarOnSenderChange
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(display.Sequence(eng.store.Messages(chatID), opts))
		},
	}
	cmd.Flags().StringVar(&firstUnread, "first-unread", "", "key of the first unread message")
	cmd.Flags().IntVar(&limit, "limit", 0, "messages to load (default MESSAGE_PAGE_SIZE)")
	cmd.Flags().BoolVar(&collapse, "collapse-avatars", false, "only show an avatar when the sender changes")
	return cmd
}
