package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"batchplane/internal/batch"
	"batchplane/internal/store"

	"github.com/google/uuid"
)

const definitionColumns = `id, code, job_name, type, label, raw_parameters, created_at`

// CreateDefinition inserts a new job definition. The raw parameters are
// stored as a JSONB document.
func (s *Store) CreateDefinition(ctx context.Context, definition *batch.JobDefinition) error {
	if definition.ID == uuid.Nil {
		definition.ID = uuid.New()
	}
	if definition.CreatedAt.IsZero() {
		definition.CreatedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(nonNilMap(definition.RawParameters))
	if err != nil {
		return fmt.Errorf("failed to encode raw parameters: %w", err)
	}

	query := `
		INSERT INTO job_definitions (id, code, job_name, type, label, raw_parameters, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		definition.ID,
		definition.Code,
		definition.JobName,
		definition.Type,
		definition.Label,
		raw,
		definition.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", store.ErrDuplicateCode, definition.Code)
	}
	return err
}

func (s *Store) FindDefinition(ctx context.Context, code string) (*batch.JobDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM job_definitions WHERE code = $1`

	definition, err := scanDefinition(s.db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return definition, nil
}

func (s *Store) ListDefinitions(ctx context.Context) ([]*batch.JobDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM job_definitions ORDER BY code ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var definitions []*batch.JobDefinition
	for rows.Next() {
		definition, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		definitions = append(definitions, definition)
	}
	return definitions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row scanner) (*batch.JobDefinition, error) {
	var (
		definition batch.JobDefinition
		raw        []byte
	)
	if err := row.Scan(
		&definition.ID, &definition.Code, &definition.JobName,
		&definition.Type, &definition.Label, &raw, &definition.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := decodeJSON(raw, &definition.RawParameters); err != nil {
		return nil, fmt.Errorf("job definition %s: %w", definition.Code, err)
	}
	if definition.RawParameters == nil {
		definition.RawParameters = map[string]any{}
	}
	return &definition, nil
}

// decodeJSON unmarshals a JSONB column, leaving v untouched for NULL.
func decodeJSON(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode column: %w", err)
	}
	return nil
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
