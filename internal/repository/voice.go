package repository

import (
	"context"
	"fmt"

	"github.com/auralforge/auralforge/internal/model"
)

// UpsertVoiceClone records the clone produced by a cloning job.
// Re-running the same job updates the existing row.
func (r *Repository) UpsertVoiceClone(ctx context.Context, vc *model.VoiceClone) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO voice_clones (id, team_id, job_id, name, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status
	`, vc.ID, vc.TeamID, vc.JobID, vc.Name, vc.Status, vc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert voice clone: %w", err)
	}
	return nil
}

// ListVoiceClones returns the team's cloned voices, newest first.
func (r *Repository) ListVoiceClones(ctx context.Context, teamID string) ([]*model.VoiceClone, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, team_id, job_id, name, status, created_at
		FROM voice_clones
		WHERE team_id = $1
		ORDER BY created_at DESC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list voice clones: %w", err)
	}
	defer rows.Close()

	clones := []*model.VoiceClone{}
	for rows.Next() {
		var vc model.VoiceClone
		if err := rows.Scan(&vc.ID, &vc.TeamID, &vc.JobID, &vc.Name, &vc.Status, &vc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan voice clone: %w", err)
		}
		clones = append(clones, &vc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating voice clones: %w", err)
	}
	return clones, nil
}
