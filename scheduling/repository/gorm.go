package repository

import (
	"context"
	"time"

	"github.com/castrel/postflow/pkg/recurrence"
	"github.com/castrel/postflow/scheduling/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// --- Persistence Models ---

type scheduleSpecModel struct {
	UserID     string    `gorm:"primaryKey;column:user_id"`
	Frequency  string    `gorm:"not null"`
	TimeOfDay  string    `gorm:"column:time_of_day;not null"`
	DayOfWeek  *int      `gorm:"column:day_of_week"`
	DayOfMonth *int      `gorm:"column:day_of_month"`
	Timezone   string    `gorm:"not null;default:'UTC'"`
	NextRunAt  time.Time `gorm:"column:next_run_at;index"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (scheduleSpecModel) TableName() string {
	return "schedule_specs"
}

type scheduledPostModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"index:idx_posts_user_status,priority:1;not null"`
	ContentID string    `gorm:"not null"`
	RunAt     time.Time `gorm:"column:run_at;index:idx_posts_due"`
	Timezone  string
	Status    string    `gorm:"index:idx_posts_user_status,priority:2;default:'pending'"`
	Error     string    `gorm:"column:last_error"`
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (scheduledPostModel) TableName() string {
	return "scheduled_posts"
}

func toSpecModel(s *domain.ScheduleSpec) scheduleSpecModel {
	return scheduleSpecModel{
		UserID:     s.UserID,
		Frequency:  string(s.Frequency),
		TimeOfDay:  s.TimeOfDay,
		DayOfWeek:  s.DayOfWeek,
		DayOfMonth: s.DayOfMonth,
		Timezone:   s.Timezone,
		NextRunAt:  s.NextRunAt.UTC(),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

func fromSpecModel(m scheduleSpecModel) *domain.ScheduleSpec {
	return &domain.ScheduleSpec{
		UserID:     m.UserID,
		Frequency:  recurrence.Frequency(m.Frequency),
		TimeOfDay:  m.TimeOfDay,
		DayOfWeek:  m.DayOfWeek,
		DayOfMonth: m.DayOfMonth,
		Timezone:   m.Timezone,
		NextRunAt:  m.NextRunAt.UTC(),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func toPostModel(p *domain.ScheduledPost) scheduledPostModel {
	return scheduledPostModel{
		ID:        p.ID,
		UserID:    p.UserID,
		ContentID: p.ContentID,
		RunAt:     p.RunAt.UTC(),
		Timezone:  p.Timezone,
		Status:    string(p.Status),
		Error:     p.Error,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func fromPostModel(m scheduledPostModel) *domain.ScheduledPost {
	return &domain.ScheduledPost{
		ID:        m.ID,
		UserID:    m.UserID,
		ContentID: m.ContentID,
		RunAt:     m.RunAt.UTC(),
		Timezone:  m.Timezone,
		Status:    domain.PostStatus(m.Status),
		Error:     m.Error,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func fromPostModels(models []scheduledPostModel) []*domain.ScheduledPost {
	posts := make([]*domain.ScheduledPost, 0, len(models))
	for _, m := range models {
		posts = append(posts, fromPostModel(m))
	}
	return posts
}

// --- Store ---

// Store is the gorm-backed implementation of the scheduling repositories
// and the reconciliation transaction runner.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// InitSchema creates or migrates the scheduling tables.
func (s *Store) InitSchema(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&scheduleSpecModel{}, &scheduledPostModel{})
}

// --- ScheduleRepository ---

func (s *Store) GetSpec(ctx context.Context, userID string) (*domain.ScheduleSpec, error) {
	return getSpec(s.db.WithContext(ctx), userID)
}

func (s *Store) SaveSpec(ctx context.Context, spec *domain.ScheduleSpec) error {
	return saveSpec(s.db.WithContext(ctx), spec)
}

// --- PostRepository ---

func (s *Store) GetByID(ctx context.Context, id string) (*domain.ScheduledPost, error) {
	var m scheduledPostModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrPostNotFound
		}
		return nil, err
	}
	return fromPostModel(m), nil
}

func (s *Store) List(ctx context.Context, filter domain.PostFilter) ([]*domain.ScheduledPost, error) {
	q := s.db.WithContext(ctx).Model(&scheduledPostModel{}).Order("created_at ASC")
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", string(*filter.Status))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var models []scheduledPostModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	return fromPostModels(models), nil
}

func (s *Store) CountPending(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&scheduledPostModel{}).
		Where("user_id = ? AND status = ?", userID, string(domain.PostStatusPending)).
		Count(&count).Error
	return count, err
}

func (s *Store) ListDue(ctx context.Context, before time.Time, limit int) ([]*domain.ScheduledPost, error) {
	q := s.db.WithContext(ctx).
		Where("status = ? AND run_at <= ?", string(domain.PostStatusPending), before.UTC()).
		Order("run_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []scheduledPostModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	return fromPostModels(models), nil
}

func (s *Store) NextPendingRun(ctx context.Context) (*time.Time, error) {
	var m scheduledPostModel
	err := s.db.WithContext(ctx).
		Where("status = ?", string(domain.PostStatusPending)).
		Order("run_at ASC").
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	next := m.RunAt.UTC()
	return &next, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status domain.PostStatus, errMsg string) error {
	result := s.db.WithContext(ctx).Model(&scheduledPostModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"last_error": errMsg,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

// --- TxRunner ---

// RunInTx runs fn inside a single database transaction. On Postgres it also
// takes a transaction-scoped advisory lock keyed by user, so two instances
// reconciling the same user serialize at the database.
func (s *Store) RunInTx(ctx context.Context, userID string, fn func(tx domain.ReconciliationTx) error) (err error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.db.Dialector.Name() == "postgres" {
		if err = tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", userID).Error; err != nil {
			return err
		}
	}

	if err = fn(&txStore{db: tx}); err != nil {
		return err
	}
	err = tx.Commit().Error
	return err
}

// txStore scopes the reconciliation operations to one open transaction.
type txStore struct {
	db *gorm.DB
}

func (t *txStore) PendingBacklog(ctx context.Context, userID string) ([]*domain.ScheduledPost, error) {
	var models []scheduledPostModel
	err := t.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, string(domain.PostStatusPending)).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromPostModels(models), nil
}

func (t *txStore) SaveSpec(ctx context.Context, spec *domain.ScheduleSpec) error {
	return saveSpec(t.db.WithContext(ctx), spec)
}

func (t *txStore) AssignRunAt(ctx context.Context, postID string, runAt time.Time, timezone string) error {
	result := t.db.WithContext(ctx).Model(&scheduledPostModel{}).
		Where("id = ? AND status = ?", postID, string(domain.PostStatusPending)).
		Updates(map[string]any{
			"run_at":     runAt.UTC(),
			"timezone":   timezone,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// The post left the backlog between read and write; treat as a
		// conflict so the whole transaction rolls back and retries cleanly.
		return domain.ErrPostNotPending
	}
	return nil
}

func (t *txStore) CreatePost(ctx context.Context, post *domain.ScheduledPost) error {
	m := toPostModel(post)
	return t.db.WithContext(ctx).Create(&m).Error
}

func (t *txStore) DeletePost(ctx context.Context, id string) error {
	result := t.db.WithContext(ctx).Delete(&scheduledPostModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

// --- shared helpers ---

func getSpec(db *gorm.DB, userID string) (*domain.ScheduleSpec, error) {
	var m scheduleSpecModel
	if err := db.First(&m, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, err
	}
	return fromSpecModel(m), nil
}

func saveSpec(db *gorm.DB, spec *domain.ScheduleSpec) error {
	now := time.Now().UTC()
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = now
	}
	spec.UpdatedAt = now

	m := toSpecModel(spec)
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"frequency":    m.Frequency,
			"time_of_day":  m.TimeOfDay,
			"day_of_week":  m.DayOfWeek,
			"day_of_month": m.DayOfMonth,
			"timezone":     m.Timezone,
			"next_run_at":  m.NextRunAt,
			"updated_at":   m.UpdatedAt,
		}),
	}).Create(&m).Error
}
