package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srvmarket/srvchat/internal/api"
	"github.com/srvmarket/srvchat/internal/tui/client"
)

var (
	loginViewer    string
	loginToken     string
	loginEndpoint  string
	loginNoPersist bool

	watchNamespaces []string
)

func init() {
	loginCmd.Flags().StringVar(&loginViewer, "viewer", "", "viewer id")
	loginCmd.Flags().StringVar(&loginToken, "token", "", "bearer token (defaults to $SRVCHAT_TOKEN)")
	loginCmd.Flags().StringVar(&loginEndpoint, "endpoint", "", "remote store URL (defaults to the configured one)")
	loginCmd.Flags().BoolVar(&loginNoPersist, "no-persist", false, "do not store the credential in the config")
	_ = loginCmd.MarkFlagRequired("viewer")

	watchCmd.Flags().StringSliceVar(&watchNamespaces, "ns", nil, "event namespaces (inbox., sync., notify., push.)")

	rootCmd.AddCommand(loginCmd, logoutCmd, watchCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign the daemon in as a viewer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token := loginToken
		if token == "" {
			token = os.Getenv("SRVCHAT_TOKEN")
		}
		if token == "" {
			return errors.New("a token is required (--token or $SRVCHAT_TOKEN)")
		}
		return withClient(func(ctx context.Context, c *client.Client) error {
			st, err := c.SignIn(ctx, &api.SignInRequest{
				ViewerID: loginViewer,
				Token:    token,
				Endpoint: loginEndpoint,
				Persist:  !loginNoPersist,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(st)
			}
			fmt.Printf("Signed in as %s on %s\n", st.ViewerID, st.Endpoint)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the viewer's local data",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			if _, err := c.SignOut(ctx); err != nil {
				return err
			}
			fmt.Println("Signed out")
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream daemon events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		return c.Watch(ctx, watchNamespaces, func(evt *api.EventEnvelope) {
			if jsonOutput {
				_ = outputJSON(evt)
				return
			}
			fmt.Println(formatEvent(evt))
		})
	},
}

func formatEvent(evt *api.EventEnvelope) string {
	parts := []string{formatTime(evt.OccurredAtMs), evt.Kind}
	if evt.ConversationID != "" {
		parts = append(parts, "conversation="+evt.ConversationID)
	}
	if evt.Phase != "" {
		parts = append(parts, "phase="+evt.Phase)
	}
	if evt.Count != nil {
		parts = append(parts, fmt.Sprintf("count=%d", *evt.Count))
	}
	if evt.Message != "" {
		parts = append(parts, fmt.Sprintf("message=%q", evt.Message))
	}
	return strings.Join(parts, " ")
}
