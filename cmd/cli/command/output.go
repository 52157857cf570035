package command

import (
	"fmt"
	"io"
	"strings"
	"time"

	"uniportal/internal/fanout"
	"uniportal/internal/microservices/http-api/models"
	"uniportal/internal/reconciler"

	"github.com/fatih/color"
)

const rule = "─────────────────────────────────────────────────────────"

func kindColor(kind models.Kind) *color.Color {
	switch kind {
	case models.KindSystem:
		return color.New(color.FgMagenta, color.Bold)
	case models.KindAlert:
		return color.New(color.FgRed, color.Bold)
	case models.KindWarning:
		return color.New(color.FgYellow)
	case models.KindSuccess:
		return color.New(color.FgGreen)
	case models.KindAnnouncement:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgBlue)
	}
}

func readMarker(read bool) string {
	if read {
		return " "
	}
	return "●"
}

func printNotifications(w io.Writer, rows []models.Notification, total int64, page, totalPages int, showOwner bool) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "📭 No notifications")
		return
	}

	fmt.Fprintf(w, "🔔 Notifications (%d total, page %d/%d)\n", total, page, max(totalPages, 1))
	fmt.Fprintln(w, rule)
	for _, n := range rows {
		fmt.Fprintf(w, "%s %s %s\n", readMarker(n.IsRead), kindColor(n.Kind).Sprintf("[%s]", n.Kind), n.Title)
		if n.Description != nil && *n.Description != "" {
			fmt.Fprintf(w, "   %s\n", *n.Description)
		}
		if n.ActionURL != nil && *n.ActionURL != "" {
			fmt.Fprintf(w, "   → %s\n", *n.ActionURL)
		}
		meta := []string{"id " + n.ID, n.CreatedAt.Local().Format("2006-01-02 15:04")}
		if showOwner {
			owner := n.OwnerUserID
			if n.Owner != nil && n.Owner.Email != "" {
				owner = n.Owner.Email
			}
			meta = append(meta, "owner "+owner)
		}
		if n.IsExpired(time.Now()) {
			meta = append(meta, "expired")
		}
		color.New(color.FgHiBlack).Fprintf(w, "   %s\n", strings.Join(meta, " · "))
	}
}

// renderChange prints one line per applied real-time event.
func renderChange(w io.Writer, state reconciler.State, out reconciler.Outcome) {
	if out.Ignored {
		return
	}
	badge := color.New(color.Bold).Sprintf("(%d unread)", state.Badge)

	switch out.Event {
	case fanout.EventNew:
		if len(state.Feed.Items) == 0 {
			return
		}
		n := state.Feed.Items[0]
		fmt.Fprintf(w, "🔔 %s %s %s\n", kindColor(n.Kind).Sprintf("[%s]", n.Kind), n.Title, badge)
	case fanout.EventUpdated:
		fmt.Fprintf(w, "✎ notification updated %s\n", badge)
	case fanout.EventDeleted, fanout.EventDeletedMany:
		fmt.Fprintf(w, "🗑  notification removed %s\n", badge)
	case fanout.EventSync:
		fmt.Fprintf(w, "↻ synced %d notifications %s\n", len(state.Feed.Items), badge)
	}
}

func printFeed(w io.Writer, state reconciler.State) {
	fmt.Fprintf(w, "🔔 %d notifications, %d unread\n", state.Feed.Total, state.Badge)
	fmt.Fprintln(w, rule)
	for _, p := range state.Feed.Items {
		fmt.Fprintf(w, "%s %s %s\n", readMarker(p.Read), kindColor(p.Kind).Sprintf("[%s]", p.Kind), p.Title)
	}
	if state.Feed.HasMore {
		color.New(color.FgHiBlack).Fprintln(w, "   … older notifications not shown")
	}
}

// printTable redraws the cached admin page from real-time state.
func printTable(w io.Writer, table reconciler.AdminTable) {
	fmt.Fprintf(w, "↻ %d rows on this page, %d total\n", len(table.Rows), table.Total)
	for _, p := range table.Rows {
		fmt.Fprintf(w, "%s %s %s\n", readMarker(p.Read), kindColor(p.Kind).Sprintf("[%s]", p.Kind), p.Title)
		color.New(color.FgHiBlack).Fprintf(w, "   id %s · owner %s\n", p.ID, p.ToUserID)
	}
}
