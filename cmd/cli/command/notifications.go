package command

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"uniportal/cmd/cli/command/client"
	"uniportal/internal/admintable"
	"uniportal/internal/fanout"
	"uniportal/internal/microservices/http-api/models"
	"uniportal/internal/reconciler"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const commandTimeout = 15 * time.Second

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"n"},
	Short:   "List, read and watch your notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your notifications, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		httpClient, _, err := GetAuthenticatedClient()
		if err != nil {
			return err
		}

		q, err := queryFromFlags(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		page, err := httpClient.List(ctx, q)
		if err != nil {
			return fmt.Errorf("failed to fetch notifications: %w", err)
		}
		printNotifications(cmd.OutOrStdout(), page.Rows, page.Total, page.Page, page.TotalPages, false)
		return nil
	},
}

func rowAction(use, short string, run func(ctx context.Context, c *client.HTTPClient, id string) error, done string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			httpClient, _, err := GetAuthenticatedClient()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			if err := run(ctx, httpClient, args[0]); err != nil {
				return friendly(err)
			}
			color.Green("✓ %s", done)
			return nil
		},
	}
}

var notificationsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show your feed and follow it in real time",
	RunE: func(cmd *cobra.Command, args []string) error {
		httpClient, creds, err := GetAuthenticatedClient()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		r := newReconciler(creds.UserID, creds.Role, cfg.ProtectedSuperAdminID,
			func(state reconciler.State, o reconciler.Outcome) {
				renderChange(out, state, o)
			})

		if err := seedFeed(ctx, httpClient, r, creds.UserID, cfg.FeedCapacity); err != nil {
			return fmt.Errorf("failed to load feed: %w", err)
		}
		printFeed(out, r.State())

		color.HiBlack("Watching for notifications, Ctrl+C to stop")
		return follow(ctx, creds.UserID, creds.AccessToken, r)
	},
}

// newReconciler builds the per-session cache for the signed-in user. Only
// super-admins see SYSTEM records, matching what the API lists for them.
func newReconciler(userID, role, protectedID string, onChange func(reconciler.State, reconciler.Outcome)) *reconciler.Reconciler {
	opts := []reconciler.Option{
		reconciler.WithProtectedSuperAdmin(protectedID),
		reconciler.WithLogger(slog.Default()),
		reconciler.OnChange(onChange),
	}
	if models.IsSuperAdmin(role) {
		opts = append(opts, reconciler.AsSuperAdmin())
	}
	return reconciler.New(userID, opts...)
}

// follow subscribes r to the real-time stream until ctx ends.
func follow(ctx context.Context, userID, token string, r *reconciler.Reconciler) error {
	stream, err := client.Dial(ctx, cfg.WSURL, token, slog.Default())
	if err != nil {
		return err
	}
	defer stream.Close()
	stream.OnRaw = func(msg fanout.Message) {
		if msg.Event == "error" {
			color.Red("server: %s", string(msg.Data))
		}
	}

	session := reconciler.NewSession()
	defer session.Close()
	session.Subscribe(userID, stream, r)

	return stream.Run(ctx)
}

// seedFeed loads the first page of the user's own notifications plus the
// unread total.
func seedFeed(ctx context.Context, c *client.HTTPClient, r *reconciler.Reconciler, userID string, capacity int) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	page, err := c.List(ctx, admintable.Query{Page: 1, Limit: capacity, Filters: admintable.Filters{OwnerUserID: userID}})
	if err != nil {
		return err
	}
	unread := false
	unreadPage, err := c.List(ctx, admintable.Query{Page: 1, Limit: 1, Filters: admintable.Filters{OwnerUserID: userID, IsRead: &unread}})
	if err != nil {
		return err
	}

	items := make([]fanout.Payload, 0, len(page.Rows))
	for _, n := range page.Rows {
		items = append(items, fanout.PayloadFrom(n))
	}
	r.SeedFeed(items, int(page.Total), int(unreadPage.Total))
	return nil
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().Int("page", 1, "page number")
	cmd.Flags().Int("limit", 0, "page size (default from config)")
	cmd.Flags().StringP("search", "s", "", "search title, description and owner")
	cmd.Flags().StringP("kind", "k", "", "only this kind (SYSTEM, MESSAGE, ANNOUNCEMENT, ALERT, WARNING, SUCCESS, INFO)")
	cmd.Flags().Bool("unread", false, "only unread notifications")
	cmd.Flags().Bool("read", false, "only read notifications")
	cmd.MarkFlagsMutuallyExclusive("unread", "read")
}

func queryFromFlags(cmd *cobra.Command) (admintable.Query, error) {
	page, _ := cmd.Flags().GetInt("page")
	limit, _ := cmd.Flags().GetInt("limit")
	search, _ := cmd.Flags().GetString("search")
	kindFlag, _ := cmd.Flags().GetString("kind")
	onlyUnread, _ := cmd.Flags().GetBool("unread")
	onlyRead, _ := cmd.Flags().GetBool("read")

	if limit < 1 {
		limit = cfg.PageSize
	}
	q := admintable.Query{Page: page, Limit: limit, Search: search}
	if kindFlag != "" {
		kind, err := models.ParseKind(kindFlag)
		if err != nil {
			return q, err
		}
		q.Filters.Kind = &kind
	}
	switch {
	case onlyUnread:
		read := false
		q.Filters.IsRead = &read
	case onlyRead:
		read := true
		q.Filters.IsRead = &read
	}
	if cmd.Flags().Lookup("owner") != nil {
		q.Filters.OwnerUserID, _ = cmd.Flags().GetString("owner")
	}
	return q, nil
}

func init() {
	addQueryFlags(notificationsListCmd)

	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsWatchCmd)
	notificationsCmd.AddCommand(rowAction("read", "Mark a notification as read",
		func(ctx context.Context, c *client.HTTPClient, id string) error { return c.MarkRead(ctx, id) },
		"Marked as read"))
	notificationsCmd.AddCommand(rowAction("unread", "Mark a notification as unread",
		func(ctx context.Context, c *client.HTTPClient, id string) error { return c.MarkUnread(ctx, id) },
		"Marked as unread"))
	notificationsCmd.AddCommand(rowAction("delete", "Delete a notification",
		func(ctx context.Context, c *client.HTTPClient, id string) error { return c.Delete(ctx, id) },
		"Notification deleted"))
}
