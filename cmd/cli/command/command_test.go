package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"uniportal/cmd/cli/command/client"
	"uniportal/internal/fanout"
	"uniportal/internal/microservices/http-api/models"
	"uniportal/internal/microservices/http-api/service"
	"uniportal/internal/reconciler"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestLoadCLIConfig_Defaults(t *testing.T) {
	cfg, err := LoadCLIConfig(newViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.WSURL)
	assert.Equal(t, 20, cfg.FeedCapacity)
	assert.Equal(t, 20, cfg.PageSize)
}

func TestLoadCLIConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_url: https://portal.uni.edu/\nfeed_capacity: 5\nprotected_super_admin_id: root\n"), 0o600))
	t.Setenv("UNIPORTAL_PAGE_SIZE", "50")

	cfg, err := LoadCLIConfig(newViper(), path)
	require.NoError(t, err)

	assert.Equal(t, "https://portal.uni.edu", cfg.APIURL)
	assert.Equal(t, "wss://portal.uni.edu/ws", cfg.WSURL)
	assert.Equal(t, 5, cfg.FeedCapacity)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, "root", cfg.ProtectedSuperAdminID)
}

func TestLoadCLIConfig_BrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_url: [unterminated"), 0o600))

	_, err := LoadCLIConfig(newViper(), path)
	assert.Error(t, err)
}

func TestFriendly(t *testing.T) {
	assert.Contains(t, friendly(fmt.Errorf("%w: n1", service.ErrForbidden)).Error(), "not allowed")
	assert.Contains(t, friendly(context.DeadlineExceeded).Error(), "too long")

	unauth := fmt.Errorf("%w: invalid token", client.ErrUnauthorized)
	assert.Same(t, unauth, friendly(unauth))
	other := errors.New("dial tcp: connection refused")
	assert.Same(t, other, friendly(other))
}

func TestRenderChange(t *testing.T) {
	var buf bytes.Buffer
	state := reconciler.State{
		Feed:  reconciler.Feed{Items: []fanout.Payload{{ID: "n1", Kind: models.KindAlert, Title: "Exam moved"}}},
		Badge: 3,
	}

	renderChange(&buf, state, reconciler.Outcome{Event: fanout.EventNew})
	assert.Equal(t, "🔔 [ALERT] Exam moved (3 unread)\n", buf.String())

	buf.Reset()
	renderChange(&buf, state, reconciler.Outcome{Event: fanout.EventNew, Ignored: true})
	assert.Empty(t, buf.String())
}

func TestPrintNotifications(t *testing.T) {
	var buf bytes.Buffer
	desc := "Room 204"
	rows := []models.Notification{{
		ID:          "n1",
		OwnerUserID: "u1",
		Owner:       &models.Owner{ID: "u1", Email: "ana@uni.edu"},
		Kind:        models.KindWarning,
		Title:       "Fee due",
		Description: &desc,
	}}

	printNotifications(&buf, rows, 1, 1, 1, true)

	out := buf.String()
	assert.Contains(t, out, "● [WARNING] Fee due")
	assert.Contains(t, out, "Room 204")
	assert.Contains(t, out, "owner ana@uni.edu")

	buf.Reset()
	printNotifications(&buf, nil, 0, 1, 0, false)
	assert.Contains(t, buf.String(), "No notifications")
}

func TestNewReconciler_SystemVisibilityFollowsRole(t *testing.T) {
	system, err := fanout.NewMessage(fanout.EventNew, fanout.Payload{ID: "s1", ToUserID: "u1", Kind: models.KindSystem}, time.Now())
	require.NoError(t, err)

	admin := newReconciler("u1", models.RoleAdmin, "", func(reconciler.State, reconciler.Outcome) {})
	out := admin.Apply(*system)
	assert.True(t, out.Ignored)
	assert.Zero(t, admin.State().Badge)

	super := newReconciler("u1", models.RoleSuperAdmin, "", func(reconciler.State, reconciler.Outcome) {})
	super.Apply(*system)
	assert.Equal(t, 1, super.State().Badge)
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, reconciler.AdminTable{
		Rows:  []fanout.Payload{{ID: "n1", ToUserID: "u9", Kind: models.KindInfo, Title: "Library closed", Read: true}},
		Total: 14,
	})

	out := buf.String()
	assert.Contains(t, out, "1 rows on this page, 14 total")
	assert.Contains(t, out, "[INFO] Library closed")
	assert.Contains(t, out, "owner u9")
}
