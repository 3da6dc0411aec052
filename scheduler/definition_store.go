package scheduler

import (
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/teranos/metronome/clock"
	"github.com/teranos/metronome/errors"
)

// DefinitionStore persists job definitions.
type DefinitionStore struct {
	db    *sql.DB
	clock clock.Clock
}

// NewDefinitionStore creates a definition store. A nil clock falls back to
// the system clock.
func NewDefinitionStore(db *sql.DB, clk clock.Clock) *DefinitionStore {
	if clk == nil {
		clk = clock.System()
	}
	return &DefinitionStore{db: db, clock: clk}
}

func validateDefinition(def *JobDefinition) error {
	if def.Title == "" {
		return errors.NewConfigurationError("job definition requires a title")
	}
	if def.JobType == "" {
		return errors.NewConfigurationError("job definition requires a job type")
	}
	if len(def.Config) > 0 && !json.Valid(def.Config) {
		return errors.NewConfigurationError("job definition config is not valid JSON")
	}
	return nil
}

// Create persists a new definition, assigning an ID when absent.
func (s *DefinitionStore) Create(def *JobDefinition) error {
	if err := validateDefinition(def); err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	if len(def.Config) == 0 {
		def.Config = json.RawMessage(`{}`)
	}
	def.CreatedAt = now
	def.UpdatedAt = now

	query := `
		INSERT INTO job_definitions (
			id, title, description, job_type, config, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		def.ID, def.Title, def.Description, def.JobType, string(def.Config),
		formatStoredTime(now), formatStoredTime(now),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create job definition %s", def.ID)
	}

	return nil
}

// Upsert inserts the definition or, when the ID already exists, replaces its
// mutable fields. Used by `metronome apply` so manifests stay authoritative.
func (s *DefinitionStore) Upsert(def *JobDefinition) error {
	if def.ID == "" {
		return errors.NewConfigurationError("upsert requires a definition ID")
	}
	if err := validateDefinition(def); err != nil {
		return err
	}
	if len(def.Config) == 0 {
		def.Config = json.RawMessage(`{}`)
	}

	now := s.clock.Now().UTC()

	query := `
		INSERT INTO job_definitions (
			id, title, description, job_type, config, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			job_type = excluded.job_type,
			config = excluded.config,
			updated_at = excluded.updated_at
	`

	_, err := s.db.Exec(query,
		def.ID, def.Title, def.Description, def.JobType, string(def.Config),
		formatStoredTime(now), formatStoredTime(now),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to upsert job definition %s", def.ID)
	}

	return nil
}

// Get retrieves a definition by ID.
func (s *DefinitionStore) Get(id string) (*JobDefinition, error) {
	query := `
		SELECT id, title, description, job_type, config, created_at, updated_at
		FROM job_definitions
		WHERE id = ?
	`

	def, err := s.scanDefinition(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("job definition %s not found", id)
		}
		return nil, errors.Wrapf(err, "failed to get job definition %s", id)
	}
	return def, nil
}

// List returns definitions ordered by title. A limit <= 0 falls back to
// DefaultListLimit.
func (s *DefinitionStore) List(limit int) ([]*JobDefinition, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, title, description, job_type, config, created_at, updated_at
		FROM job_definitions
		ORDER BY title ASC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list job definitions")
	}
	defer rows.Close()

	var defs []*JobDefinition
	for rows.Next() {
		def, err := s.scanDefinition(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job definition")
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating job definitions")
	}

	return defs, nil
}

// Update replaces a definition's mutable fields.
func (s *DefinitionStore) Update(def *JobDefinition) error {
	if err := validateDefinition(def); err != nil {
		return err
	}

	now := s.clock.Now().UTC()
	def.UpdatedAt = now

	result, err := s.db.Exec(`
		UPDATE job_definitions
		SET title = ?, description = ?, job_type = ?, config = ?, updated_at = ?
		WHERE id = ?
	`, def.Title, def.Description, def.JobType, string(def.Config), formatStoredTime(now), def.ID)
	if err != nil {
		return errors.Wrapf(err, "failed to update job definition %s", def.ID)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check update result")
	}
	if affected == 0 {
		return errors.NewNotFoundError("job definition %s not found", def.ID)
	}

	return nil
}

// Delete removes a definition. Deletion is refused while any trigger
// references it; remove or retire the triggers first.
func (s *DefinitionStore) Delete(id string) error {
	var referencing int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM job_triggers WHERE job_definition_id = ?`, id).
		Scan(&referencing)
	if err != nil {
		return errors.Wrapf(err, "failed to check triggers for job definition %s", id)
	}
	if referencing > 0 {
		return errors.Wrapf(errors.ErrConflict,
			"refusing to delete job definition %s: %d trigger(s) reference it", id, referencing)
	}

	result, err := s.db.Exec(`DELETE FROM job_definitions WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete job definition %s", id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check delete result")
	}
	if affected == 0 {
		return errors.NewNotFoundError("job definition %s not found", id)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *DefinitionStore) scanDefinition(row rowScanner) (*JobDefinition, error) {
	var def JobDefinition
	var description, config sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(
		&def.ID, &def.Title, &description, &def.JobType, &config,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	if description.Valid {
		def.Description = description.String
	}
	if config.Valid && config.String != "" {
		def.Config = json.RawMessage(config.String)
	}

	created, err := parseStoredTime(createdAt, "created_at", "definition "+def.ID)
	if err != nil {
		return nil, err
	}
	def.CreatedAt = created

	updated, err := parseStoredTime(updatedAt, "updated_at", "definition "+def.ID)
	if err != nil {
		return nil, err
	}
	def.UpdatedAt = updated

	return &def, nil
}
