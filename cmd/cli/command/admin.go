package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"uniportal/cmd/cli/authentication"
	"uniportal/internal/admintable"
	"uniportal/internal/microservices/http-api/models"
	"uniportal/internal/microservices/http-api/service"
	"uniportal/internal/reconciler"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administer notifications across users (admins only)",
}

func newAdminController() (*admintable.Controller, *authentication.StoredCredentials, error) {
	httpClient, creds, err := GetAuthenticatedClient()
	if err != nil {
		return nil, nil, err
	}
	if !models.IsAdministrator(creds.Role) {
		return nil, nil, fmt.Errorf("role %q cannot use admin commands", roleOrDefault(creds.Role))
	}
	viewer := admintable.Viewer{UserID: creds.UserID, IsSuperAdmin: models.IsSuperAdmin(creds.Role)}
	return admintable.NewController(httpClient, viewer, slog.Default()), creds, nil
}

var adminListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications visible to you",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, creds, err := newAdminController()
		if err != nil {
			return err
		}
		q, err := queryFromFlags(cmd)
		if err != nil {
			return err
		}

		loadCtx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		err = table.Load(loadCtx, q)
		cancel()
		if err != nil {
			return friendly(err)
		}
		out := cmd.OutOrStdout()
		total, pages := table.Total()
		printNotifications(out, table.Rows(), total, table.Query().Page, pages, true)

		if watch, _ := cmd.Flags().GetBool("watch"); !watch {
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stale := make(chan struct{}, 1)
		r := newReconciler(creds.UserID, creds.Role, cfg.ProtectedSuperAdminID,
			func(state reconciler.State, _ reconciler.Outcome) {
				if state.Table.Stale {
					select {
					case stale <- struct{}{}:
					default:
					}
					return
				}
				printTable(out, state.Table)
			})
		table.Mirror(r)
		go reloadOnStale(ctx, table, r, stale, out)

		color.HiBlack("Watching the table, Ctrl+C to stop")
		return follow(ctx, creds.UserID, creds.AccessToken, r)
	},
}

// reloadOnStale refetches the page whenever a new record may belong on it.
func reloadOnStale(ctx context.Context, table *admintable.Controller, r *reconciler.Reconciler, stale <-chan struct{}, out io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stale:
		}
		reqCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		reloaded, err := table.RefreshStale(reqCtx, r)
		cancel()
		if err != nil {
			color.Red("refresh failed: %v", friendly(err))
			continue
		}
		if reloaded {
			printTable(out, r.State().Table)
		}
	}
}

func bulkCommand(use, short string, run func(ctx context.Context, t *admintable.Controller, ids []string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id...]",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, _, err := newAdminController()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			summary, err := run(ctx, table, args)
			if err != nil {
				return friendly(err)
			}
			color.Green("✓ %s", summary)
			return nil
		},
	}
}

// friendly keeps transport and auth errors verbatim and rewrites the
// service rejections for people.
func friendly(err error) error {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrNotFound),
		errors.Is(err, service.ErrForbidden),
		errors.Is(err, context.DeadlineExceeded):
		return errors.New(admintable.UserMessage(err))
	default:
		return err
	}
}

func init() {
	addQueryFlags(adminListCmd)
	adminListCmd.Flags().String("owner", "", "only notifications owned by this user id")
	adminListCmd.Flags().BoolP("watch", "w", false, "keep the table current from real-time events")

	adminCmd.AddCommand(adminListCmd)
	adminCmd.AddCommand(bulkCommand("bulk-read", "Mark notifications as read",
		func(ctx context.Context, t *admintable.Controller, ids []string) (string, error) {
			res, err := t.BulkMarkRead(ctx, ids)
			return fmt.Sprintf("%d marked as read, %d already read", res.Count, res.AlreadyAffected), err
		}))
	adminCmd.AddCommand(bulkCommand("bulk-unread", "Mark notifications as unread",
		func(ctx context.Context, t *admintable.Controller, ids []string) (string, error) {
			res, err := t.BulkMarkUnread(ctx, ids)
			return fmt.Sprintf("%d marked as unread, %d already unread", res.Count, res.AlreadyAffected), err
		}))
	adminCmd.AddCommand(bulkCommand("bulk-delete", "Delete notifications",
		func(ctx context.Context, t *admintable.Controller, ids []string) (string, error) {
			res, err := t.BulkDelete(ctx, ids)
			if res.Skipped > 0 {
				return fmt.Sprintf("%d deleted, %d protected SYSTEM notifications skipped", res.Count, res.Skipped), err
			}
			return fmt.Sprintf("%d deleted", res.Count), err
		}))
}
