package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/spf13/cobra"
)

var messagesCmd = &cobra.Command{
	Use:     "messages",
	Aliases: []string{"msg"},
	Short:   "List and manage messages",
}

var (
	listBefore string
	listLimit  int
)

var messagesListCmd = &cobra.Command{
	Use:   "list <chat-id>",
	Short: "List a page of messages, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.ListMessages(ctx, &api.ListMessagesRequest{
				ChatID:   args[0],
				BeforeID: listBefore,
				Limit:    listLimit,
			})
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, m := range resp.Messages {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", formatTime(m.CreatedAt), m.ID, senderLabel(m), m.DeliveryStatus, m.Text)
			}
			_ = w.Flush()
			if resp.HasMore && len(resp.Messages) > 0 {
				fmt.Printf("(more: --before %s)\n", resp.Messages[0].ID)
			}
			return nil
		})
	},
}

func senderLabel(m api.Message) string {
	if m.SenderName != "" {
		return m.SenderName
	}
	return m.SenderID
}

// printProgress prints each confirmed state of a sent or edited message.
func printProgress(m *api.Message) {
	if jsonFlag {
		outputJSON(m)
		return
	}
	fmt.Printf("%s  %s\n", m.ID, m.DeliveryStatus)
}

var sendParent string

var messagesSendCmd = &cobra.Command{
	Use:   "send <chat-id> <text>",
	Short: "Send a message and follow its delivery",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStream(cmd, func(ctx context.Context, c *api.Client) error {
			stream, err := c.SendMessage(ctx, &api.SendMessageRequest{
				ChatID:   args[0],
				ParentID: sendParent,
				Text:     args[1],
			})
			if err != nil {
				return err
			}
			return recvAll(ctx, stream.Recv, printProgress)
		})
	},
}

var messagesEditCmd = &cobra.Command{
	Use:   "edit <message-id> <text>",
	Short: "Edit a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStream(cmd, func(ctx context.Context, c *api.Client) error {
			stream, err := c.EditMessage(ctx, &api.EditMessageRequest{MessageID: args[0], Text: args[1]})
			if err != nil {
				return err
			}
			return recvAll(ctx, stream.Recv, printProgress)
		})
	},
}

var deleteForEveryone bool

var messagesDeleteCmd = &cobra.Command{
	Use:   "delete <message-id>",
	Short: "Delete a message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := "for_sender_only"
		if deleteForEveryone {
			mode = "for_everyone"
		}
		return withClient(func(ctx context.Context, c *api.Client) error {
			if err := c.DeleteMessage(ctx, &api.DeleteMessageRequest{MessageID: args[0], Mode: mode}); err != nil {
				return err
			}
			fmt.Printf("Deleted message %s\n", args[0])
			return nil
		})
	},
}

func init() {
	messagesListCmd.Flags().StringVar(&listBefore, "before", "", "list messages older than this message id")
	messagesListCmd.Flags().IntVar(&listLimit, "limit", 50, "page size")
	messagesSendCmd.Flags().StringVar(&sendParent, "reply-to", "", "parent message id")
	messagesDeleteCmd.Flags().BoolVar(&deleteForEveryone, "everyone", false, "delete for every participant")
	messagesCmd.AddCommand(messagesListCmd, messagesSendCmd, messagesEditCmd, messagesDeleteCmd)
}
