package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Siddarth2230/tag-registry/internal/models"
	"github.com/Siddarth2230/tag-registry/pkg/metrics"
	"github.com/Siddarth2230/tag-registry/pkg/tagcodec"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

var (
	// ErrDuplicate is returned by Save when the tag id, name or call site
	// is already registered.
	ErrDuplicate = errors.New("tag already registered")
	ErrNotFound  = errors.New("tag not registered")
)

type TagRepository struct {
	db *sql.DB
}

func NewTagRepository(db *sql.DB) *TagRepository {
	return &TagRepository{db: db}
}

// EnsureSchema creates the tags table if it does not exist.
func (r *TagRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating tags schema: %w", err)
	}
	return nil
}

func (r *TagRepository) Save(ctx context.Context, tag *models.Tag) error {
	defer observe("save", time.Now())

	query := `
        INSERT INTO tags (tag_id, tag_name, component, call_site, description, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	var callSite sql.NullString
	if tag.CallSite != "" {
		callSite = sql.NullString{String: tag.CallSite, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		int64(tag.ID), tag.Name, tag.Component, callSite, tag.Description, tag.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s (%s)", ErrDuplicate, tag.Name, pqErr.Constraint)
		}
		return fmt.Errorf("saving tag %s: %w", tag.Name, err)
	}
	return nil
}

func (r *TagRepository) FindByID(ctx context.Context, id tagcodec.ID) (*models.Tag, error) {
	defer observe("find", time.Now())

	query := `
        SELECT tag_id, tag_name, component, call_site, description, created_at
        FROM tags
        WHERE tag_id = $1
	`
	tag, err := scanTag(r.db.QueryRowContext(ctx, query, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding tag %s: %w", id, err)
	}
	return tag, nil
}

// FindByCallSite returns the tag already reserved for callSite.
func (r *TagRepository) FindByCallSite(ctx context.Context, callSite string) (*models.Tag, error) {
	defer observe("find_call_site", time.Now())

	query := `
        SELECT tag_id, tag_name, component, call_site, description, created_at
        FROM tags
        WHERE call_site = $1
	`
	tag, err := scanTag(r.db.QueryRowContext(ctx, query, callSite))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding call site %s: %w", callSite, err)
	}
	return tag, nil
}

func (r *TagRepository) ExistsByID(ctx context.Context, id tagcodec.ID) (bool, error) {
	defer observe("exists", time.Now())

	query := `SELECT EXISTS(SELECT 1 FROM tags WHERE tag_id = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, int64(id)).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking tag %s: %w", id, err)
	}
	return exists, nil
}

// ListByComponent returns the tags of component, or every tag when
// component is empty, oldest first.
func (r *TagRepository) ListByComponent(ctx context.Context, component string) ([]models.Tag, error) {
	defer observe("list", time.Now())

	query := `
        SELECT tag_id, tag_name, component, call_site, description, created_at
        FROM tags
        WHERE $1 = '' OR component = $1
        ORDER BY created_at, tag_id
	`
	rows, err := r.db.QueryContext(ctx, query, component)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tags = append(tags, *tag)
	}
	return tags, rows.Err()
}

func (r *TagRepository) DeleteByID(ctx context.Context, id tagcodec.ID) error {
	defer observe("delete", time.Now())

	result, err := r.db.ExecContext(ctx, `DELETE FROM tags WHERE tag_id = $1`, int64(id))
	if err != nil {
		return fmt.Errorf("deleting tag %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting tag %s: %w", id, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTag(row scanner) (*models.Tag, error) {
	var (
		tag      models.Tag
		id       int64
		callSite sql.NullString
	)
	if err := row.Scan(&id, &tag.Name, &tag.Component, &callSite, &tag.Description, &tag.CreatedAt); err != nil {
		return nil, err
	}
	tag.ID = tagcodec.ID(id)
	tag.CallSite = callSite.String
	return &tag, nil
}

func observe(operation string, start time.Time) {
	metrics.DatabaseQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
