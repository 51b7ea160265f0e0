package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"damagedetect/internal/models"
)

// InferenceRepository implements repository.InferenceRepository for SQLite.
type InferenceRepository struct {
	db *DB
}

func NewInferenceRepository(db *DB) *InferenceRepository {
	return &InferenceRepository{db: db}
}

// Insert stores an inference and its detections in one transaction.
func (r *InferenceRepository) Insert(inf *models.Inference) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	tx, err := r.db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO inferences (id, filename, model_path, detection_count, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, inf.ID, inf.Filename, inf.ModelPath, len(inf.Detections), inf.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert inference: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO detections (inference_id, class_id, class_name, confidence, x, y, width, height)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, det := range inf.Detections {
		if _, err := stmt.Exec(inf.ID, det.ClassID, det.ClassName, det.Confidence, det.X, det.Y, det.Width, det.Height); err != nil {
			return fmt.Errorf("failed to insert detection: %w", err)
		}
	}

	return tx.Commit()
}

// GetByID returns the inference with its detections, or nil when it does not exist.
func (r *InferenceRepository) GetByID(id string) (*models.Inference, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var inf models.Inference
	err := r.db.conn.QueryRow(`
		SELECT id, filename, model_path, detection_count, created_at
		FROM inferences WHERE id = ?
	`, id).Scan(&inf.ID, &inf.Filename, &inf.ModelPath, &inf.DetectionCount, &inf.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inference: %w", err)
	}

	inf.Detections, err = r.detections(inf.ID)
	if err != nil {
		return nil, err
	}
	return &inf, nil
}

// GetAll returns inferences newest first, with their detections.
func (r *InferenceRepository) GetAll(filter *models.InferenceFilter) ([]models.Inference, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	where, args := buildWhere(filter)
	query := `SELECT id, filename, model_path, detection_count, created_at FROM inferences` +
		where + ` ORDER BY created_at DESC, id DESC`

	if filter != nil && filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inferences: %w", err)
	}

	var inferences []models.Inference
	for rows.Next() {
		var inf models.Inference
		if err := rows.Scan(&inf.ID, &inf.Filename, &inf.ModelPath, &inf.DetectionCount, &inf.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan inference: %w", err)
		}
		inferences = append(inferences, inf)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate inferences: %w", err)
	}

	// The single connection must be free before the per-row detection queries.
	for i := range inferences {
		inferences[i].Detections, err = r.detections(inferences[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return inferences, nil
}

// GetTotalCount counts inferences matching filter.
func (r *InferenceRepository) GetTotalCount(filter *models.InferenceFilter) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	where, args := buildWhere(filter)
	var count int
	if err := r.db.conn.QueryRow(`SELECT COUNT(*) FROM inferences`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count inferences: %w", err)
	}
	return count, nil
}

// GetAllClassNames returns the distinct class names ever detected.
func (r *InferenceRepository) GetAllClassNames() ([]string, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	rows, err := r.db.conn.Query(`SELECT DISTINCT class_name FROM detections ORDER BY class_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query class names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan class name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes one inference; its detections cascade.
func (r *InferenceRepository) Delete(id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, err := r.db.conn.Exec(`DELETE FROM inferences WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete inference: %w", err)
	}
	return nil
}

// DeleteAll clears the history.
func (r *InferenceRepository) DeleteAll() error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, err := r.db.conn.Exec(`DELETE FROM inferences`); err != nil {
		return fmt.Errorf("failed to clear inferences: %w", err)
	}
	return nil
}

// detections must be called with the lock held.
func (r *InferenceRepository) detections(inferenceID string) ([]models.Detection, error) {
	rows, err := r.db.conn.Query(`
		SELECT class_id, class_name, confidence, x, y, width, height
		FROM detections WHERE inference_id = ? ORDER BY confidence DESC, id
	`, inferenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	detections := []models.Detection{}
	for rows.Next() {
		var det models.Detection
		if err := rows.Scan(&det.ClassID, &det.ClassName, &det.Confidence, &det.X, &det.Y, &det.Width, &det.Height); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, det)
	}
	return detections, rows.Err()
}

func buildWhere(filter *models.InferenceFilter) (string, []any) {
	if filter == nil {
		return "", nil
	}

	var clauses []string
	var args []any
	if filter.ClassName != "" {
		clauses = append(clauses, `id IN (SELECT inference_id FROM detections WHERE class_name = ?)`)
		args = append(args, filter.ClassName)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
