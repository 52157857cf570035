package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"uniportal/internal/microservices/http-api/models"
	"uniportal/internal/microservices/http-api/repository"

	"gorm.io/datatypes"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
	defaultSyncLimit = 100
)

// Actor is the authenticated caller of a mutation.
type Actor struct {
	UserID       string
	IsSuperAdmin bool
}

// CreateInput describes a notification to create. OwnerUserID is ignored by the
// role fan-out creators.
type CreateInput struct {
	OwnerUserID string
	Title       string
	Description *string
	ActionURL   *string
	Kind        models.Kind
	Metadata    datatypes.JSON
	ExpiresAt   *time.Time
}

type Page struct {
	Rows       []models.Notification `json:"rows"`
	Page       int                   `json:"page"`
	Limit      int                   `json:"limit"`
	Total      int64                 `json:"total"`
	TotalPages int                   `json:"totalPages"`
}

type BulkMarkResult struct {
	Count           int `json:"count"`
	AlreadyAffected int `json:"alreadyAffected"`
}

type BulkDeleteResult struct {
	Count   int `json:"count"`
	Skipped int `json:"skipped"`
}

type NotificationService interface {
	List(ctx context.Context, q repository.ListQuery) *Page
	CreateForUser(ctx context.Context, in CreateInput) (*models.Notification, error)
	CreateForSuperAdmins(ctx context.Context, in CreateInput) (int, error)
	CreateForAllAdmins(ctx context.Context, in CreateInput) (int, error)
	MarkRead(ctx context.Context, id string, actor Actor) (*models.Notification, error)
	MarkUnread(ctx context.Context, id string, actor Actor) (*models.Notification, error)
	Delete(ctx context.Context, id string, actor Actor) error
	BulkMarkRead(ctx context.Context, ids []string, actor Actor) (BulkMarkResult, error)
	BulkMarkUnread(ctx context.Context, ids []string, actor Actor) (BulkMarkResult, error)
	BulkDelete(ctx context.Context, ids []string, actor Actor) (BulkDeleteResult, error)
}

type Option func(*notificationService)

func WithLogger(logger *slog.Logger) Option {
	return func(s *notificationService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSyncLimit caps the snapshot sent with notifications:sync.
func WithSyncLimit(limit int) Option {
	return func(s *notificationService) {
		if limit > 0 {
			s.syncLimit = limit
		}
	}
}

// WithProtectedSuperAdmin names the one operator whose sync snapshot covers
// every record rather than only their own.
func WithProtectedSuperAdmin(userID string) Option {
	return func(s *notificationService) {
		s.protectedSuperAdminID = strings.TrimSpace(userID)
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *notificationService) {
		s.now = now
	}
}

type notificationService struct {
	repo                  repository.NotificationRepository
	users                 repository.UserRepository
	notifier              Notifier
	logger                *slog.Logger
	syncLimit             int
	protectedSuperAdminID string
	now                   func() time.Time
}

func NewNotificationService(
	repo repository.NotificationRepository,
	users repository.UserRepository,
	notifier Notifier,
	opts ...Option,
) NotificationService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	s := &notificationService{
		repo:      repo,
		users:     users,
		notifier:  notifier,
		logger:    slog.Default(),
		syncLimit: defaultSyncLimit,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List never fails: store errors degrade to an empty page.
func (s *notificationService) List(ctx context.Context, q repository.ListQuery) *Page {
	q.Page, q.Limit = normalizePage(q.Page, q.Limit)

	rows, total, err := s.repo.List(ctx, q)
	if err != nil {
		s.logger.Error("notification_list_failed",
			"viewer_id", q.ViewerUserID,
			"super_admin", q.ViewerIsSuperAdmin,
			"error", err,
		)
		rows, total = []models.Notification{}, 0
	}

	return &Page{
		Rows:       rows,
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: totalPages(total, q.Limit),
	}
}

func (s *notificationService) CreateForUser(ctx context.Context, in CreateInput) (*models.Notification, error) {
	ownerID := strings.TrimSpace(in.OwnerUserID)
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner user id is required", ErrValidation)
	}
	kind, err := normalizeKind(in.Kind)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		s.logger.Warn("notification_skipped_empty_title", "owner_id", ownerID)
		return nil, nil
	}

	ctx = context.WithoutCancel(ctx)

	if _, err := s.users.FindActiveByID(ctx, ownerID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.logger.Info("notification_skipped_inactive_owner", "owner_id", ownerID)
			return nil, nil
		}
		return nil, err
	}

	n := s.build(ownerID, kind, in)
	if err := s.repo.Create(ctx, n); err != nil {
		if errors.Is(err, repository.ErrUnknownOwner) {
			// owner vanished between the lookup and the insert
			return nil, nil
		}
		return nil, err
	}

	s.notifier.NotificationsCreated(ctx, []models.Notification{*n}, AudienceUser)
	return n, nil
}

func (s *notificationService) CreateForSuperAdmins(ctx context.Context, in CreateInput) (int, error) {
	return s.createForRoles(ctx, in, AudienceSuperAdmins, models.RoleSuperAdmin)
}

func (s *notificationService) CreateForAllAdmins(ctx context.Context, in CreateInput) (int, error) {
	return s.createForRoles(ctx, in, AudienceAllAdmins, models.RoleSuperAdmin, models.RoleAdmin)
}

// createForRoles writes one independent record per active recipient.
func (s *notificationService) createForRoles(ctx context.Context, in CreateInput, audience Audience, roles ...string) (int, error) {
	kind, err := normalizeKind(in.Kind)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(in.Title) == "" {
		s.logger.Warn("notification_fanout_skipped_empty_title", "roles", roles)
		return 0, nil
	}

	ctx = context.WithoutCancel(ctx)

	recipients, err := s.users.FindActiveIDsByRoles(ctx, roles...)
	if err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		s.logger.Info("notification_fanout_no_recipients", "roles", roles)
		return 0, nil
	}

	records := make([]*models.Notification, 0, len(recipients))
	for _, userID := range recipients {
		records = append(records, s.build(userID, kind, in))
	}
	if err := s.repo.CreateMany(ctx, records); err != nil {
		return 0, err
	}

	created := make([]models.Notification, 0, len(records))
	for _, n := range records {
		created = append(created, *n)
	}
	s.notifier.NotificationsCreated(ctx, created, audience)
	return len(created), nil
}

func (s *notificationService) MarkRead(ctx context.Context, id string, actor Actor) (*models.Notification, error) {
	return s.setReadState(ctx, id, actor, true)
}

func (s *notificationService) MarkUnread(ctx context.Context, id string, actor Actor) (*models.Notification, error) {
	return s.setReadState(ctx, id, actor, false)
}

// setReadState requires strict ownership, super-admins included.
func (s *notificationService) setReadState(ctx context.Context, id string, actor Actor, read bool) (*models.Notification, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: notification id is required", ErrValidation)
	}

	ctx = context.WithoutCancel(ctx)

	n, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.OwnerUserID != actor.UserID {
		return nil, fmt.Errorf("%w: notification %s belongs to another user", ErrForbidden, id)
	}
	if n.IsRead == read {
		return n, nil
	}

	now := s.now()
	affected, err := s.repo.SetReadState(ctx, []string{n.ID}, read, now)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// lost a race with an identical request; report what is stored
		return s.find(ctx, id)
	}

	applyReadState(n, read, now)
	s.notifier.NotificationUpdated(ctx, *n)
	return n, nil
}

func (s *notificationService) Delete(ctx context.Context, id string, actor Actor) error {
	if err := validateActor(actor); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: notification id is required", ErrValidation)
	}

	ctx = context.WithoutCancel(ctx)

	n, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if !actor.IsSuperAdmin && n.OwnerUserID != actor.UserID {
		return fmt.Errorf("%w: notification %s belongs to another user", ErrForbidden, id)
	}
	if n.Kind.Protected() && !actor.IsSuperAdmin {
		return fmt.Errorf("%w: %s notifications can only be deleted by a super administrator", ErrForbidden, n.Kind)
	}

	affected, err := s.repo.DeleteMany(ctx, []string{n.ID})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: notification %s", ErrNotFound, id)
	}

	s.notifier.NotificationsDeleted(ctx, actor.UserID, []models.Notification{*n})
	return nil
}

func (s *notificationService) BulkMarkRead(ctx context.Context, ids []string, actor Actor) (BulkMarkResult, error) {
	return s.bulkSetReadState(ctx, ids, actor, true)
}

func (s *notificationService) BulkMarkUnread(ctx context.Context, ids []string, actor Actor) (BulkMarkResult, error) {
	return s.bulkSetReadState(ctx, ids, actor, false)
}

// bulkSetReadState is all-or-nothing: one foreign or missing id rejects the batch.
func (s *notificationService) bulkSetReadState(ctx context.Context, ids []string, actor Actor, read bool) (BulkMarkResult, error) {
	if err := validateActor(actor); err != nil {
		return BulkMarkResult{}, err
	}
	ids = normalizeIDs(ids)
	if len(ids) == 0 {
		return BulkMarkResult{}, fmt.Errorf("%w: at least one notification id is required", ErrValidation)
	}

	ctx = context.WithoutCancel(ctx)

	found, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return BulkMarkResult{}, err
	}
	if missing := missingIDs(ids, found); len(missing) > 0 {
		return BulkMarkResult{}, fmt.Errorf("%w: notifications %s", ErrNotFound, strings.Join(missing, ", "))
	}

	pending := make([]models.Notification, 0, len(found))
	for _, n := range found {
		if n.OwnerUserID != actor.UserID {
			return BulkMarkResult{}, fmt.Errorf("%w: notification %s belongs to another user", ErrForbidden, n.ID)
		}
		if n.IsRead != read {
			pending = append(pending, n)
		}
	}

	result := BulkMarkResult{AlreadyAffected: len(found) - len(pending)}
	if len(pending) == 0 {
		return result, nil
	}

	now := s.now().Truncate(time.Microsecond)
	affected, err := s.repo.SetReadState(ctx, notificationIDs(pending), read, now)
	if err != nil {
		return BulkMarkResult{}, err
	}
	result.Count = int(affected)
	if affected == 0 {
		return result, nil
	}

	changed := pending
	if int(affected) < len(pending) {
		// a concurrent request flipped some rows first; announce only ours
		changed, err = s.changedBy(ctx, pending, read, now)
		if err != nil {
			s.logger.Error("bulk_mark_reread_failed", "actor_id", actor.UserID, "error", err)
			changed = nil
		}
	} else {
		for i := range changed {
			applyReadState(&changed[i], read, now)
		}
	}

	for _, n := range changed {
		s.notifier.NotificationUpdated(ctx, n)
	}
	s.emitSync(ctx, actor)

	return result, nil
}

// BulkDelete makes maximal safe progress: protected kinds are skipped for
// non super-admins while the rest of the batch is still deleted.
func (s *notificationService) BulkDelete(ctx context.Context, ids []string, actor Actor) (BulkDeleteResult, error) {
	if err := validateActor(actor); err != nil {
		return BulkDeleteResult{}, err
	}
	ids = normalizeIDs(ids)
	if len(ids) == 0 {
		return BulkDeleteResult{}, fmt.Errorf("%w: at least one notification id is required", ErrValidation)
	}

	ctx = context.WithoutCancel(ctx)

	found, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return BulkDeleteResult{}, err
	}
	if len(found) == 0 {
		return BulkDeleteResult{}, fmt.Errorf("%w: none of the requested notifications exist", ErrNotFound)
	}
	if missing := missingIDs(ids, found); len(missing) > 0 {
		s.logger.Info("bulk_delete_missing_ids", "actor_id", actor.UserID, "missing", missing)
	}

	if !actor.IsSuperAdmin {
		for _, n := range found {
			if n.OwnerUserID != actor.UserID {
				return BulkDeleteResult{}, fmt.Errorf("%w: notification %s belongs to another user", ErrForbidden, n.ID)
			}
		}
	}

	deletable := make([]models.Notification, 0, len(found))
	skipped := 0
	for _, n := range found {
		if n.Kind.Protected() && !actor.IsSuperAdmin {
			skipped++
			continue
		}
		deletable = append(deletable, n)
	}
	if len(deletable) == 0 {
		return BulkDeleteResult{}, fmt.Errorf("%w: every requested notification is protected", ErrForbidden)
	}
	if skipped > 0 {
		s.logger.Info("bulk_delete_skipped_protected", "actor_id", actor.UserID, "skipped", skipped)
	}

	affected, err := s.repo.DeleteMany(ctx, notificationIDs(deletable))
	if err != nil {
		return BulkDeleteResult{}, err
	}

	if affected > 0 {
		s.notifier.NotificationsDeleted(ctx, actor.UserID, deletable)
	}
	return BulkDeleteResult{Count: int(affected), Skipped: skipped}, nil
}

// emitSync sends the actor their own rows plus the true total and unread
// counts, so a truncated snapshot never shrinks the badge. Only the protected
// super-admin gets the global view. The query skips normalizePage: the sync
// limit is bounded by config, not by MaxPageLimit.
func (s *notificationService) emitSync(ctx context.Context, actor Actor) {
	q := repository.ListQuery{
		Page:               1,
		Limit:              s.syncLimit,
		ViewerUserID:       actor.UserID,
		ViewerIsSuperAdmin: actor.IsSuperAdmin,
	}
	if !s.isProtected(actor) {
		q.Filters.OwnerUserID = actor.UserID
	}

	rows, total, err := s.repo.List(ctx, q)
	if err != nil {
		s.logger.Error("sync_snapshot_failed", "actor_id", actor.UserID, "error", err)
		return
	}

	unreadOnly := false
	uq := q
	uq.Limit = 1
	uq.Filters.IsRead = &unreadOnly
	_, unread, err := s.repo.List(ctx, uq)
	if err != nil {
		s.logger.Error("sync_snapshot_failed", "actor_id", actor.UserID, "error", err)
		return
	}

	s.notifier.NotificationsSynced(ctx, actor.UserID, rows, int(total), int(unread))
}

// changedBy re-reads pending rows and keeps those stamped by our own write.
// at must carry no more than microsecond precision to survive the round trip.
func (s *notificationService) changedBy(ctx context.Context, pending []models.Notification, read bool, at time.Time) ([]models.Notification, error) {
	stored, err := s.repo.FindByIDs(ctx, notificationIDs(pending))
	if err != nil {
		return nil, err
	}
	changed := make([]models.Notification, 0, len(stored))
	for _, n := range stored {
		if n.IsRead == read && n.UpdatedAt.Equal(at) {
			changed = append(changed, n)
		}
	}
	return changed, nil
}

func (s *notificationService) isProtected(actor Actor) bool {
	return actor.IsSuperAdmin && s.protectedSuperAdminID != "" && actor.UserID == s.protectedSuperAdminID
}

func (s *notificationService) find(ctx context.Context, id string) (*models.Notification, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			return nil, fmt.Errorf("%w: notification %s", ErrNotFound, id)
		}
		return nil, err
	}
	return n, nil
}

func (s *notificationService) build(ownerID string, kind models.Kind, in CreateInput) *models.Notification {
	now := s.now()
	return &models.Notification{
		OwnerUserID: ownerID,
		Kind:        kind,
		Title:       strings.TrimSpace(in.Title),
		Description: trimmedOrNil(in.Description),
		ActionURL:   trimmedOrNil(in.ActionURL),
		Metadata:    in.Metadata,
		ExpiresAt:   in.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func applyReadState(n *models.Notification, read bool, at time.Time) {
	n.IsRead = read
	n.UpdatedAt = at
	if read {
		t := at
		n.ReadAt = &t
	} else {
		n.ReadAt = nil
	}
}

func validateActor(actor Actor) error {
	if strings.TrimSpace(actor.UserID) == "" {
		return fmt.Errorf("%w: acting user id is required", ErrValidation)
	}
	return nil
}

func normalizeKind(k models.Kind) (models.Kind, error) {
	if k == "" {
		return models.KindInfo, nil
	}
	parsed, err := models.ParseKind(string(k))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return parsed, nil
}

// normalizeIDs trims, drops blanks and de-duplicates, keeping first-seen order.
func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func missingIDs(requested []string, found []models.Notification) []string {
	have := make(map[string]struct{}, len(found))
	for _, n := range found {
		have[n.ID] = struct{}{}
	}
	var missing []string
	for _, id := range requested {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func notificationIDs(list []models.Notification) []string {
	ids := make([]string, 0, len(list))
	for _, n := range list {
		ids = append(ids, n.ID)
	}
	return ids
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

func totalPages(total int64, limit int) int {
	if total == 0 || limit < 1 {
		return 0
	}
	pages := total / int64(limit)
	if total%int64(limit) != 0 {
		pages++
	}
	return int(pages)
}
