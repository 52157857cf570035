package repository

import (
	"context"
	"errors"
	"testing"

	"uniportal/internal/microservices/http-api/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	viewerID = "6f1c2a7e-1d0b-4d0e-9c51-8a3b0f2d9a11"
	otherID  = "0b7d4e2c-5a3f-4c1e-8f6a-2d9e1b3c4f55"
)

// newDryRunRepo builds statements against the postgres dialector without a server.
func newDryRunRepo(t *testing.T) *notificationRepository {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=test dbname=test sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return &notificationRepository{db: db}
}

func buildSQL(t *testing.T, r *notificationRepository, q ListQuery) (string, []any) {
	t.Helper()
	db, ok := r.scopedQuery(context.Background(), q)
	require.True(t, ok)
	stmt := db.Find(&[]models.Notification{}).Statement
	return stmt.SQL.String(), stmt.Vars
}

func TestScopedQuery_NonSuperAdminVisibility(t *testing.T) {
	r := newDryRunRepo(t)

	sql, vars := buildSQL(t, r, ListQuery{ViewerUserID: viewerID})

	assert.Contains(t, sql, "notifications.owner_user_id = $1")
	assert.Contains(t, sql, "notifications.kind <> $2")
	assert.Equal(t, viewerID, vars[0])
	assert.Equal(t, models.KindSystem, vars[1])
}

func TestScopedQuery_SuperAdminSeesEverything(t *testing.T) {
	r := newDryRunRepo(t)

	sql, vars := buildSQL(t, r, ListQuery{ViewerUserID: viewerID, ViewerIsSuperAdmin: true})

	assert.NotContains(t, sql, "notifications.owner_user_id =")
	assert.NotContains(t, sql, "notifications.kind <>")
	assert.Empty(t, vars)
}

func TestScopedQuery_FiltersComposeWithVisibility(t *testing.T) {
	r := newDryRunRepo(t)
	kind := models.KindSystem
	read := false

	sql, vars := buildSQL(t, r, ListQuery{
		ViewerUserID: viewerID,
		Filters: ListFilters{
			Kind:        &kind,
			IsRead:      &read,
			OwnerUserID: otherID,
		},
	})

	// both the visibility predicates and the filters are ANDed together,
	// so a SYSTEM filter from a regular viewer can only match nothing
	assert.Contains(t, sql, "notifications.kind <> $2")
	assert.Contains(t, sql, "notifications.kind = $3")
	assert.Contains(t, sql, "notifications.is_read = $4")
	assert.Contains(t, sql, "notifications.owner_user_id = $5")
	assert.Equal(t, []any{viewerID, models.KindSystem, models.KindSystem, false, otherID}, vars)
}

func TestScopedQuery_SearchCoversTitleDescriptionAndOwner(t *testing.T) {
	r := newDryRunRepo(t)

	sql, vars := buildSQL(t, r, ListQuery{ViewerIsSuperAdmin: true, Search: "  50%_off "})

	assert.Contains(t, sql, "LEFT JOIN users AS owner")
	assert.Contains(t, sql, "notifications.title ILIKE $1")
	assert.Contains(t, sql, "owner.email ILIKE $3")
	require.Len(t, vars, 4)
	assert.Equal(t, `%50\%\_off%`, vars[0])
}

func TestScopedQuery_NoViewer(t *testing.T) {
	r := &notificationRepository{}

	_, ok := r.scopedQuery(context.Background(), ListQuery{})
	assert.False(t, ok)

	rows, total, err := r.List(context.Background(), ListQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, total)
}

func TestScopedQuery_InvalidOwnerFilterMatchesNothing(t *testing.T) {
	r := &notificationRepository{}

	_, ok := r.scopedQuery(context.Background(), ListQuery{
		ViewerIsSuperAdmin: true,
		Filters:            ListFilters{OwnerUserID: "not-a-uuid"},
	})
	assert.False(t, ok)
}

func TestListQuery_Offset(t *testing.T) {
	assert.Equal(t, 0, ListQuery{Page: 0, Limit: 10}.offset())
	assert.Equal(t, 0, ListQuery{Page: 1, Limit: 10}.offset())
	assert.Equal(t, 20, ListQuery{Page: 3, Limit: 10}.offset())
}

func TestClassify(t *testing.T) {
	err := classify(&pgconn.PgError{Code: pgInvalidTextRepresentation, Message: "invalid input syntax for type uuid"})
	assert.True(t, errors.Is(err, errInvalidValue))

	err = classify(&pgconn.PgError{Code: pgForeignKeyViolation})
	assert.True(t, errors.Is(err, ErrUnknownOwner))

	plain := errors.New("boom")
	assert.Equal(t, plain, classify(plain))
}

func TestValidIDs(t *testing.T) {
	assert.Equal(t, []string{viewerID}, validIDs([]string{"x", viewerID, ""}))
}

func TestFindByIDs_AllInvalid(t *testing.T) {
	r := &notificationRepository{}

	rows, err := r.FindByIDs(context.Background(), []string{"nope"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUserRepository_FindActiveByID_InvalidID(t *testing.T) {
	r := &userRepository{}

	_, err := r.FindActiveByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
