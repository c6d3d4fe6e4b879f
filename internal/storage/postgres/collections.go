package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/dnguyen/collections-be/internal/collections"
)

// CollectionStore implements collections.Store on PostgreSQL over the
// company_collections / company_collection_associations tables.
type CollectionStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewCollectionStore creates a Postgres-backed membership store.
func NewCollectionStore(db *sqlx.DB, logger *slog.Logger) *CollectionStore {
	return &CollectionStore{
		db:     db,
		logger: logger,
	}
}

func (s *CollectionStore) Exists(ctx context.Context, collectionID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM company_collections WHERE id = $1)`, collectionID)
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return exists, nil
}

func (s *CollectionStore) Name(ctx context.Context, collectionID string) (string, error) {
	var name string
	err := s.db.GetContext(ctx, &name,
		`SELECT collection_name FROM company_collections WHERE id = $1`, collectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", collections.ErrCollectionNotFound
		}
		return "", fmt.Errorf("failed to get collection name: %w", err)
	}
	return name, nil
}

func (s *CollectionStore) Contains(ctx context.Context, collectionID string, companyID int64) (bool, error) {
	var present bool
	err := s.db.GetContext(ctx, &present, `
		SELECT EXISTS (
			SELECT 1 FROM company_collection_associations
			WHERE collection_id = $1 AND company_id = $2
		)`, collectionID, companyID)
	if err != nil {
		return false, fmt.Errorf("failed to check collection membership: %w", err)
	}
	return present, nil
}

// Add inserts the association. The unique constraint on
// (company_id, collection_id) plus ON CONFLICT DO NOTHING makes the
// add idempotent at the storage layer, so retried adds after a crash
// cannot double-count or fail.
func (s *CollectionStore) Add(ctx context.Context, collectionID string, companyID int64) error {
	query := `
		INSERT INTO company_collection_associations (company_id, collection_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (company_id, collection_id) DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query, companyID, collectionID); err != nil {
		s.logger.Error("Failed to add company to collection",
			slog.Int64("company_id", companyID),
			slog.String("collection_id", collectionID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to add company to collection: %w", err)
	}
	return nil
}

func (s *CollectionStore) ListMembers(ctx context.Context, collectionID string) ([]int64, error) {
	exists, err := s.Exists(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, collections.ErrCollectionNotFound
	}

	var ids []int64
	err = s.db.SelectContext(ctx, &ids, `
		SELECT company_id FROM company_collection_associations
		WHERE collection_id = $1
		ORDER BY company_id`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection members: %w", err)
	}
	return ids, nil
}

func (s *CollectionStore) Count(ctx context.Context, collectionID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM company_collection_associations
		WHERE collection_id = $1`, collectionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count collection members: %w", err)
	}
	return count, nil
}
