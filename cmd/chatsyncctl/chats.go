package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/spf13/cobra"
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List and manage chats",
}

func printChatList(chats []api.ChatPreview) {
	if len(chats) == 0 {
		fmt.Println("No chats.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tUNREAD\tLAST MESSAGE\tAT")
	for _, c := range chats {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", c.ID, c.Name, c.UnreadMessagesCount,
			truncate(c.LastMessageText, 40), formatTime(c.LastMessageAt))
	}
	_ = w.Flush()
}

func printChat(c api.Chat) {
	fmt.Printf("ID:           %s\n", c.ID)
	fmt.Printf("Name:         %s\n", c.Name)
	fmt.Printf("Unread:       %d\n", c.UnreadMessagesCount)
	fmt.Printf("One-to-one:   %v\n", c.IsOneToOne)
	fmt.Printf("Closed:       %v\n", c.IsClosed)
	fmt.Printf("Archived:     %v\n", c.IsArchived)
	fmt.Printf("Last active:  %s\n", formatTime(c.LastActivityAt))
	fmt.Printf("Participants: %d\n", len(c.Participants))
	for _, p := range c.Participants {
		role := ""
		switch {
		case p.IsAdmin:
			role = " (admin)"
		case p.IsModerator:
			role = " (moderator)"
		}
		fmt.Printf("  %s %s%s\n", p.ID, p.Name, role)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List local chats, most recently active first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.ListChats(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			printChatList(resp.Chats)
			return nil
		})
	},
}

var chatsWatchCmd = &cobra.Command{
	Use:   "watch [chat-id]",
	Short: "Stream the chat list, or one chat, as it changes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStream(cmd, func(ctx context.Context, c *api.Client) error {
			if len(args) == 1 {
				stream, err := c.WatchChat(ctx, args[0])
				if err != nil {
					return err
				}
				return recvAll(ctx, stream.Recv, func(resp *api.GetChatResponse) {
					if jsonFlag {
						outputJSON(resp)
						return
					}
					printChat(resp.Chat)
					fmt.Println()
				})
			}
			stream, err := c.WatchChatList(ctx)
			if err != nil {
				return err
			}
			return recvAll(ctx, stream.Recv, func(resp *api.ListChatsResponse) {
				if jsonFlag {
					outputJSON(resp)
					return
				}
				printChatList(resp.Chats)
				fmt.Println()
			})
		})
	},
}

// recvAll prints every streamed value until the stream or ctx ends.
func recvAll[T any](ctx context.Context, recv func() (*T, error), show func(*T)) error {
	for {
		v, err := recv()
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		show(v)
	}
}

var chatsShowCmd = &cobra.Command{
	Use:   "show <chat-id>",
	Short: "Show one chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.GetChat(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			printChat(resp.Chat)
			return nil
		})
	},
}

var (
	createParticipants []string
	createOneToOne     bool
)

var chatsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.CreateChat(ctx, &api.CreateChatRequest{
				Name:           args[0],
				ParticipantIDs: createParticipants,
				OneToOne:       createOneToOne,
			})
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Created chat %s\n", resp.Chat.ID)
			return nil
		})
	},
}

var chatsDeleteCmd = &cobra.Command{
	Use:   "delete <chat-id>",
	Short: "Delete a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			if err := c.DeleteChat(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted chat %s\n", args[0])
			return nil
		})
	},
}

var chatsJoinCmd = &cobra.Command{
	Use:   "join <chat-id> [invite-link]",
	Short: "Join a chat, optionally through an invite link",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		link := ""
		if len(args) == 2 {
			link = args[1]
		}
		return withClient(func(ctx context.Context, c *api.Client) error {
			resp, err := c.JoinChat(ctx, args[0], link)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(resp)
				return nil
			}
			fmt.Printf("Joined chat %s (%s)\n", resp.Chat.ID, resp.Chat.Name)
			return nil
		})
	},
}

var chatsLeaveCmd = &cobra.Command{
	Use:   "leave <chat-id>",
	Short: "Leave a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			if err := c.LeaveChat(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Left chat %s\n", args[0])
			return nil
		})
	},
}

var chatsReadCmd = &cobra.Command{
	Use:   "read <chat-id> <up-to-message-id>",
	Short: "Mark messages as read",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			return c.MarkRead(ctx, args[0], args[1])
		})
	},
}

func init() {
	chatsCreateCmd.Flags().StringSliceVar(&createParticipants, "participant", nil, "participant id (repeatable)")
	chatsCreateCmd.Flags().BoolVar(&createOneToOne, "one-to-one", false, "create a one-to-one chat")
	chatsCmd.AddCommand(chatsListCmd, chatsWatchCmd, chatsShowCmd, chatsCreateCmd, chatsDeleteCmd,
		chatsJoinCmd, chatsLeaveCmd, chatsReadCmd)
}
