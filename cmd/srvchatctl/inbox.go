package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srvmarket/srvchat/internal/api"
	"github.com/srvmarket/srvchat/internal/tui/client"
)

var sendTo string

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "receiver id (defaults to the other participant)")

	rootCmd.AddCommand(
		statusCmd,
		conversationsCmd,
		openCmd,
		threadCmd,
		olderCmd,
		closeCmd,
		sendCmd,
		readCmd,
		readAllCmd,
		unreadCmd,
		newCmd,
		refreshCmd,
	)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and synchronizer status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(st)
			}
			viewer := st.ViewerID
			if viewer == "" {
				viewer = "(signed out)"
			}
			fmt.Printf("Profile:       %s\n", st.Profile)
			fmt.Printf("Viewer:        %s\n", viewer)
			fmt.Printf("Endpoint:      %s\n", st.Endpoint)
			fmt.Printf("Phase:         %s\n", st.Phase)
			fmt.Printf("Auto-refresh:  %v\n", st.AutoRefresh)
			fmt.Printf("Conversations: %d\n", st.Conversations)
			fmt.Printf("Unread:        %d\n", st.Unread)
			if st.OpenThread != "" {
				fmt.Printf("Open thread:   %s\n", st.OpenThread)
			}
			if st.Error != "" {
				fmt.Printf("Error:         %s\n", st.Error)
			}
			if st.BackgroundError != "" {
				fmt.Printf("Last background error: %s\n", st.BackgroundError)
			}
			fmt.Printf("Uptime:        %dms\n", st.UptimeMs)
			return nil
		})
	},
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List conversations, fetching them first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.ListConversations(ctx, true)
			if err != nil {
				return err
			}
			return printConversations(resp)
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch conversations now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.Refresh(ctx)
			if err != nil {
				return err
			}
			return printConversations(resp)
		})
	},
}

func printConversations(resp *api.ListConversationsResponse) error {
	if jsonOutput {
		return outputJSON(resp)
	}
	if len(resp.Conversations) == 0 {
		fmt.Println("No conversations.")
		return nil
	}
	fmt.Printf("%-24s %-24s %6s %-16s %s\n", "ID", "WITH", "UNREAD", "LAST", "MESSAGE")
	for _, conv := range resp.Conversations {
		last := ""
		if m := conv.LastMessage; m != nil {
			last = strings.ReplaceAll(m.Content, "\n", " ")
			if m.FromMe {
				last = "You: " + last
			}
		}
		fmt.Printf("%-24s %-24s %6d %-16s %s\n", conv.ID, conv.OtherUserName, conv.Unread, formatTime(conv.LastMessageAtMs), last)
	}
	fmt.Printf("\n%d unread\n", resp.Unread)
	return nil
}

var openCmd = &cobra.Command{
	Use:   "open CONVERSATION_ID",
	Short: "Open a conversation, marking it read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			t, err := c.OpenConversation(ctx, args[0])
			if err != nil {
				return err
			}
			return printThread(t)
		})
	},
}

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Show the open conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			t, err := c.Thread(ctx)
			if err != nil {
				return err
			}
			return printThread(t)
		})
	},
}

var olderCmd = &cobra.Command{
	Use:   "older",
	Short: "Load older messages of the open conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			t, err := c.LoadOlder(ctx)
			if err != nil {
				return err
			}
			return printThread(t)
		})
	},
}

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the open conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			return c.CloseConversation(ctx)
		})
	},
}

func printThread(t *api.ThreadResponse) error {
	if jsonOutput {
		return outputJSON(t)
	}
	fmt.Printf("Conversation %s with %s\n\n", t.Conversation.ID, t.Conversation.OtherUserName)
	if t.HasMore {
		fmt.Println("  (older messages available: srvchatctl older)")
	}
	for _, m := range t.Messages {
		sender := t.Conversation.OtherUserName
		if m.FromMe {
			sender = "You"
		}
		body := m.Content
		if m.Attachment != nil {
			body = fmt.Sprintf("[file %s, %d bytes] %s", m.Attachment.Name, m.Attachment.Size, body)
		}
		fmt.Printf("[%s] %s (%s): %s\n", formatTime(m.CreatedAtMs), sender, m.Status, body)
	}
	return nil
}

var sendCmd = &cobra.Command{
	Use:   "send TEXT",
	Short: "Send a message in the open conversation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			m, err := c.SendMessage(ctx, strings.Join(args, " "), sendTo)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(m)
			}
			fmt.Printf("Sent %s to %s\n", m.ID, m.ReceiverID)
			return nil
		})
	},
}

var readCmd = &cobra.Command{
	Use:   "read CONVERSATION_ID",
	Short: "Mark a conversation read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			return c.MarkRead(ctx, args[0])
		})
	},
}

var readAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every loaded conversation read",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			n, err := c.MarkAllRead(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(api.MarkAllReadResponse{Marked: n})
			}
			fmt.Printf("Marking %d conversations read\n", n)
			return nil
		})
	},
}

var unreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Print the total unread count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			n, err := c.UnreadCount(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(api.UnreadCountResponse{Unread: n})
			}
			fmt.Println(n)
			return nil
		})
	},
}

var newCmd = &cobra.Command{
	Use:   "new PROVIDER_ID",
	Short: "Start a conversation with a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			conv, err := c.CreateConversation(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(conv)
			}
			fmt.Printf("Created conversation %s with %s\n", conv.ID, conv.ProviderID)
			return nil
		})
	},
}
