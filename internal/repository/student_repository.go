package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/guidexpert/counsellor-api/internal/models"
)

const studentColumns = "id, full_name, phone, course, email, status, joined_at, notes, deleted_at, created_at, updated_at"

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func studentConditions(filter models.StudentFilter) ([]string, []interface{}) {
	conditions := []string{"1=1"}
	var args []interface{}

	if !filter.IncludeDeleted {
		conditions = append(conditions, "deleted_at IS NULL")
	}
	if filter.Course != "" {
		conditions = append(conditions, fmt.Sprintf("course = $%d", len(args)+1))
		args = append(args, filter.Course)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.JoinedFrom != nil {
		conditions = append(conditions, fmt.Sprintf("joined_at >= $%d", len(args)+1))
		args = append(args, *filter.JoinedFrom)
	}
	if filter.JoinedTo != nil {
		conditions = append(conditions, fmt.Sprintf("joined_at <= $%d", len(args)+1))
		args = append(args, *filter.JoinedTo)
	}
	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR phone LIKE $%d OR LOWER(COALESCE(email, '')) LIKE $%d)", idx, idx, idx))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	return conditions, args
}

// List returns one page of students matching the filter plus the total count.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	conditions, args := studentConditions(filter)
	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	switch size {
	case 10, 25, 50, 100:
	default:
		size = 10
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM students WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d", studentColumns, where, size, offset)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM students WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// ListAll returns every student matching the filter, used by exports.
func (r *StudentRepository) ListAll(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	conditions, args := studentConditions(filter)
	query := fmt.Sprintf("SELECT %s FROM students WHERE %s ORDER BY created_at DESC", studentColumns, strings.Join(conditions, " AND "))
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("export students: %w", err)
	}
	return students, nil
}

// FindByID fetches a student by ID including soft-deleted rows.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// Create inserts a new student record, assigning defaults the server owns.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.JoinedAt.IsZero() {
		student.JoinedAt = now.Truncate(24 * time.Hour)
	}
	if student.Status == "" {
		student.Status = models.StudentStatusActive
	}
	student.CreatedAt = now
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, full_name, phone, course, email, status, joined_at, notes, deleted_at, created_at, updated_at)
        VALUES (:id, :full_name, :phone, :course, :email, :status, :joined_at, :notes, :deleted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update writes every mutable field; the caller applies partial merges.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET full_name = :full_name, phone = :phone, course = :course, email = :email, status = :status, joined_at = :joined_at, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// SoftDelete stamps deleted_at on a live row. Deleting an already-deleted
// row is a no-op.
func (r *StudentRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE students SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("soft delete student: %w", err)
	}
	return nil
}

// Restore clears deleted_at. Restoring a live row is a no-op.
func (r *StudentRepository) Restore(ctx context.Context, id string) error {
	const query = `UPDATE students SET deleted_at = NULL, updated_at = $2 WHERE id = $1 AND deleted_at IS NOT NULL`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("restore student: %w", err)
	}
	return nil
}

// BulkUpdateStatus applies the status to every live row in ids and returns
// the number of rows changed.
func (r *StudentRepository) BulkUpdateStatus(ctx context.Context, ids []string, status models.StudentStatus) (int64, error) {
	const query = `UPDATE students SET status = $1, updated_at = $2 WHERE id = ANY($3) AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("bulk update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk update status affected: %w", err)
	}
	return affected, nil
}

// BulkSoftDelete soft-deletes every live row in ids and returns the number
// of rows changed.
func (r *StudentRepository) BulkSoftDelete(ctx context.Context, ids []string) (int64, error) {
	const query = `UPDATE students SET deleted_at = $1, updated_at = $1 WHERE id = ANY($2) AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, time.Now().UTC(), pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("bulk soft delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk soft delete affected: %w", err)
	}
	return affected, nil
}
