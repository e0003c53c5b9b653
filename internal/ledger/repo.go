package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/splitpay-backend/pkg/db/models"
)

const effectiveFilter = "NOT EXISTS (SELECT 1 FROM assignments s WHERE s.supersedes_id = a.id)"

const assignedItemsQuery = `SELECT a.id AS assignment_id, a.item_id, a.guest_id, a.fraction, i.name, i.qty, i.unit_price
FROM assignments a
JOIN items i ON i.id = a.item_id
WHERE a.session_id = ? AND ` + effectiveFilter

// Repository manages the append-only assignment history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, assignment *models.Assignment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Assignment, error)
	EffectiveForItem(ctx context.Context, itemID uuid.UUID) ([]models.Assignment, error)
	ListEffective(ctx context.Context, sessionID uuid.UUID, guestID string) ([]models.Assignment, error)
	AssignedItemsForGuest(ctx context.Context, sessionID uuid.UUID, guestID string) ([]models.AssignedItem, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an assignment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == uuid.Nil {
		assignment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	var row models.Assignment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, assignmentNotFound()
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// EffectiveForItem returns the item's assignments that have not been superseded.
func (r *repository) EffectiveForItem(ctx context.Context, itemID uuid.UUID) ([]models.Assignment, error) {
	var rows []models.Assignment
	err := r.db.WithContext(ctx).
		Table("assignments AS a").
		Where("a.item_id = ?", itemID).
		Where(effectiveFilter).
		Order("a.created_at ASC").
		Order("a.id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListEffective(ctx context.Context, sessionID uuid.UUID, guestID string) ([]models.Assignment, error) {
	q := r.db.WithContext(ctx).
		Table("assignments AS a").
		Where("a.session_id = ?", sessionID).
		Where(effectiveFilter)
	if guestID != "" {
		q = q.Where("a.guest_id = ?", guestID)
	}
	var rows []models.Assignment
	err := q.Order("a.created_at ASC").Order("a.id ASC").Find(&rows).Error
	return rows, err
}

// AssignedItemsForGuest joins the guest's effective assignments with item pricing.
// An empty guestID returns every effective assignment in the session.
func (r *repository) AssignedItemsForGuest(ctx context.Context, sessionID uuid.UUID, guestID string) ([]models.AssignedItem, error) {
	query := assignedItemsQuery
	args := []any{sessionID}
	if guestID != "" {
		query += " AND a.guest_id = ?"
		args = append(args, guestID)
	}
	query += " ORDER BY a.created_at ASC, a.id ASC"

	var rows []models.AssignedItem
	err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error
	return rows, err
}
