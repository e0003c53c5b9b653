package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/splitpay-backend/pkg/db/models"
	"github.com/angelmondragon/splitpay-backend/pkg/enums"
)

// Repository manages persistence for table sessions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Session, error)
	FindOpenByCode(ctx context.Context, code string) (*models.Session, error)
	MarkClosed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a session repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var session models.Session
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &session, nil
}

// FindByIDForUpdate locks the session row for the rest of the transaction.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var session models.Session
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Where("id = ?", id).
		First(&session).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &session, nil
}

func (r *repository) FindOpenByCode(ctx context.Context, code string) (*models.Session, error) {
	var session models.Session
	if err := r.db.WithContext(ctx).
		Where("code = ? AND status = ?", code, enums.SessionStatusOpen).
		First(&session).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &session, nil
}

// MarkClosed closes an open session and reports whether a row changed.
func (r *repository) MarkClosed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND status = ?", id, enums.SessionStatusOpen).
		Updates(map[string]any{
			"status":     enums.SessionStatusClosed,
			"closed_at":  at,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound()
	}
	return err
}
