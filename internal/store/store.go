// Package store persists datasets and training samples in PostgreSQL.
//
// Tables (managed outside this package):
//
//	datasets     (id uuid pk, name text unique, description text,
//	              sample_count int, created_at timestamptz)
//	samples      (id uuid pk, dataset_name text, image_data text, task text,
//	              thought text, action text, conversations jsonb,
//	              created_at timestamptz)
//	trajectories (id uuid pk, dataset_name text, payload jsonb,
//	              created_at timestamptz)
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/claimhawk/trajector/api/schemas"
)

// ErrDatasetNotFound is returned when a named dataset does not exist.
var ErrDatasetNotFound = errors.New("dataset not found")

// DBPool abstracts the pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Store provides the PostgreSQL dataset repository.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// CreateDataset creates a named dataset and returns its id. Creating an
// existing dataset is idempotent: the existing id comes back unchanged.
func (s *Store) CreateDataset(ctx context.Context, name, description string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM datasets WHERE name = $1;`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("failed to look up dataset %q: %w", name, err)
	}

	id = uuid.NewString()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO datasets (id, name, description, sample_count, created_at)
		VALUES ($1, $2, $3, 0, $4);
	`, id, name, description, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to create dataset %q: %w", name, err)
	}

	s.log.Info("Dataset created", zap.String("name", name), zap.String("id", id))
	return id, nil
}

// AddSample persists a single-turn sample into a dataset and bumps the
// dataset's sample counter in the same transaction. The dataset is created on
// first use.
func (s *Store) AddSample(ctx context.Context, datasetName string, sample schemas.SingleTurnSample) (string, error) {
	conversations, err := json.Marshal(sample.Conversations)
	if err != nil {
		return "", fmt.Errorf("failed to marshal conversations: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	_, err = tx.Exec(ctx, `
		INSERT INTO datasets (id, name, description, sample_count, created_at)
		VALUES ($1, $2, '', 0, $3)
		ON CONFLICT (name) DO NOTHING;
	`, uuid.NewString(), datasetName, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to ensure dataset %q: %w", datasetName, err)
	}

	id := uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO samples (id, dataset_name, image_data, task, thought, action, conversations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`, id, datasetName, sample.ImageData, sample.Task, sample.Thought, sample.Action, conversations, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert sample: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE datasets SET sample_count = sample_count + 1 WHERE name = $1;
	`, datasetName)
	if err != nil {
		return "", fmt.Errorf("failed to bump sample count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// SaveTrajectory persists a finalized multi-turn sample as one jsonb payload.
func (s *Store) SaveTrajectory(ctx context.Context, datasetName string, sample schemas.MultiTurnSample) (string, error) {
	payload, err := json.Marshal(sample)
	if err != nil {
		return "", fmt.Errorf("failed to marshal trajectory: %w", err)
	}

	id := uuid.NewString()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO trajectories (id, dataset_name, payload, created_at)
		VALUES ($1, $2, $3, $4);
	`, id, datasetName, payload, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to insert trajectory: %w", err)
	}

	s.log.Info("Trajectory saved",
		zap.String("dataset", datasetName),
		zap.Int("total_steps", sample.TotalSteps),
		zap.Bool("success", sample.Success))
	return id, nil
}

// GetSamples returns up to limit samples from a dataset, newest first.
func (s *Store) GetSamples(ctx context.Context, datasetName string, limit int) ([]schemas.SampleRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, dataset_name, image_data, task, thought, action, conversations, created_at
		FROM samples
		WHERE dataset_name = $1
		ORDER BY created_at DESC
		LIMIT $2;
	`, datasetName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var records []schemas.SampleRecord
	for rows.Next() {
		var rec schemas.SampleRecord
		var conversations []byte
		err := rows.Scan(&rec.ID, &rec.DatasetName, &rec.Sample.ImageData, &rec.Sample.Task,
			&rec.Sample.Thought, &rec.Sample.Action, &conversations, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample row: %w", err)
		}
		if err := json.Unmarshal(conversations, &rec.Sample.Conversations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversations for sample %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}

// ListDatasets returns every dataset, newest first.
func (s *Store) ListDatasets(ctx context.Context) ([]schemas.Dataset, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, sample_count, created_at
		FROM datasets
		ORDER BY created_at DESC;
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query datasets: %w", err)
	}
	defer rows.Close()

	var datasets []schemas.Dataset
	for rows.Next() {
		var d schemas.Dataset
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.SampleCount, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dataset row: %w", err)
		}
		datasets = append(datasets, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return datasets, nil
}

// GetDatasetStats returns a single dataset's record.
func (s *Store) GetDatasetStats(ctx context.Context, name string) (*schemas.Dataset, error) {
	var d schemas.Dataset
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, sample_count, created_at
		FROM datasets WHERE name = $1;
	`, name).Scan(&d.ID, &d.Name, &d.Description, &d.SampleCount, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrDatasetNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset %q: %w", name, err)
	}
	return &d, nil
}

// DeleteSample removes one sample and decrements its dataset's counter.
func (s *Store) DeleteSample(ctx context.Context, sampleID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	var datasetName string
	err = tx.QueryRow(ctx, `DELETE FROM samples WHERE id = $1 RETURNING dataset_name;`, sampleID).Scan(&datasetName)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("sample %q not found", sampleID)
	}
	if err != nil {
		return fmt.Errorf("failed to delete sample: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE datasets SET sample_count = sample_count - 1 WHERE name = $1;
	`, datasetName)
	if err != nil {
		return fmt.Errorf("failed to decrement sample count: %w", err)
	}

	return tx.Commit(ctx)
}

// DeleteDataset removes a dataset with all its samples and trajectories.
func (s *Store) DeleteDataset(ctx context.Context, name string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	if _, err := tx.Exec(ctx, `DELETE FROM samples WHERE dataset_name = $1;`, name); err != nil {
		return fmt.Errorf("failed to delete samples: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM trajectories WHERE dataset_name = $1;`, name); err != nil {
		return fmt.Errorf("failed to delete trajectories: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM datasets WHERE name = $1;`, name)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrDatasetNotFound, name)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Dataset deleted", zap.String("name", name))
	return nil
}

// ExportDataset renders a dataset's samples as training annotations, in
// chronological order. Annotation ids are "{dataset}_{i}_{sample_id}".
func (s *Store) ExportDataset(ctx context.Context, name string) ([]schemas.Annotation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, image_data, conversations
		FROM samples
		WHERE dataset_name = $1
		ORDER BY created_at ASC;
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	annotations := []schemas.Annotation{}
	for rows.Next() {
		var sampleID, imageData string
		var conversations []byte
		if err := rows.Scan(&sampleID, &imageData, &conversations); err != nil {
			return nil, fmt.Errorf("failed to scan sample row: %w", err)
		}

		a := schemas.Annotation{
			ID:        fmt.Sprintf("%s_%d_%s", name, len(annotations), sampleID),
			ImageData: imageData,
		}
		if err := json.Unmarshal(conversations, &a.Conversations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversations for sample %s: %w", sampleID, err)
		}
		annotations = append(annotations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return annotations, nil
}

// ExportAll exports every dataset concurrently, keyed by dataset name.
func (s *Store) ExportAll(ctx context.Context) (map[string][]schemas.Annotation, error) {
	datasets, err := s.ListDatasets(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	out := make(map[string][]schemas.Annotation, len(datasets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, d := range datasets {
		name := d.Name
		g.Go(func() error {
			annotations, err := s.ExportDataset(gctx, name)
			if err != nil {
				return fmt.Errorf("exporting %q: %w", name, err)
			}
			mu.Lock()
			out[name] = annotations
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// rollback is the deferred transaction guard. Rolling back an already
// committed transaction reports pgx.ErrTxClosed, which is not an error here.
func (s *Store) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.log.Error("Failed to rollback transaction", zap.Error(err))
	}
}
