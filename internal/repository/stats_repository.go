package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/lumenweb/contactsync/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type statsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository wires a repository backed by pgxpool.
func NewStatsRepository(pool *pgxpool.Pool) StatsRepository {
	return &statsRepository{pool: pool}
}

func (r *statsRepository) RecordSubmission(ctx context.Context, formName string, day time.Time, accepted bool) error {
	if r.pool == nil {
		return fmt.Errorf("stats repository not initialized")
	}

	query := `INSERT INTO daily_form_stats (form_name, day, submissions, successes, failures, synced)
		 VALUES ($1, $2, 1, 0, 1, 0)
		 ON CONFLICT (form_name, day)
		 DO UPDATE SET submissions = daily_form_stats.submissions + 1,
		               failures = daily_form_stats.failures + 1`
	if accepted {
		query = `INSERT INTO daily_form_stats (form_name, day, submissions, successes, failures, synced)
		 VALUES ($1, $2, 1, 1, 0, 0)
		 ON CONFLICT (form_name, day)
		 DO UPDATE SET submissions = daily_form_stats.submissions + 1,
		               successes = daily_form_stats.successes + 1`
	}

	_, err := r.pool.Exec(ctx, query, formName, day.UTC().Truncate(24*time.Hour))
	if err != nil {
		return fmt.Errorf("failed to record submission stat: %w", err)
	}

	return nil
}

func (r *statsRepository) RecordSynced(ctx context.Context, formName string, day time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("stats repository not initialized")
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO daily_form_stats (form_name, day, submissions, successes, failures, synced)
		 VALUES ($1, $2, 0, 0, 0, 1)
		 ON CONFLICT (form_name, day)
		 DO UPDATE SET synced = daily_form_stats.synced + 1`,
		formName,
		day.UTC().Truncate(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to record synced stat: %w", err)
	}

	return nil
}

func (r *statsRepository) GetRange(ctx context.Context, formName string, from time.Time, to time.Time) ([]domain.DailyFormStats, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("stats repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT form_name, day, submissions, successes, failures, synced
		 FROM daily_form_stats
		 WHERE form_name = $1
		   AND day >= $2
		   AND day <= $3
		 ORDER BY day ASC`,
		formName,
		from.UTC().Truncate(24*time.Hour),
		to.UTC().Truncate(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	stats := []domain.DailyFormStats{}
	for rows.Next() {
		var entry domain.DailyFormStats
		if scanErr := rows.Scan(
			&entry.FormName,
			&entry.Day,
			&entry.Submissions,
			&entry.Successes,
			&entry.Failures,
			&entry.Synced,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan daily stats: %w", scanErr)
		}
		stats = append(stats, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate daily stats: %w", rowsErr)
	}

	return stats, nil
}
