package repository

import (
	"context"
	"database/sql"
	"fmt"
	"tierbot/internal/constants"
	"tierbot/internal/domain"
	"time"

	"github.com/rs/zerolog"
)

type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSQLiteStore(sqlDB *sql.DB, logger zerolog.Logger) *SQLiteStore {
	return &SQLiteStore{db: sqlDB, logger: logger.With().Str("store", "sqlite").Logger()}
}

func (s *SQLiteStore) Load(ctx context.Context) (Records, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT member_id, display_name, game_username, region, tier, last_updated FROM tier_records`)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to query tier records")
		return nil, fmt.Errorf("failed to query tier records: %w", err)
	}
	defer rows.Close()

	records := Records{}
	for rows.Next() {
		var r domain.TierRecord
		var lastUpdated string
		if err := rows.Scan(&r.MemberID, &r.DisplayName, &r.GameUsername, &r.Region, &r.Tier, &lastUpdated); err != nil {
			s.logger.Warn().Err(err).Msg("skipping unreadable tier record")
			continue
		}
		r.LastUpdated = parseTimestamp(lastUpdated)
		records[r.MemberID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tier records: %w", err)
	}

	s.logger.Debug().Int("count", len(records)).Msg("tier records loaded")
	return records, nil
}

// Save replaces the table contents inside one transaction.
func (s *SQLiteStore) Save(ctx context.Context, records Records) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tier_records`); err != nil {
		return fmt.Errorf("failed to clear tier records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tier_records (member_id, display_name, game_username, region, tier, last_updated) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for id, r := range records {
		_, err := stmt.ExecContext(ctx, id, r.DisplayName, r.GameUsername, r.Region, r.Tier, r.LastUpdated.Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to insert tier record %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error().Err(err).Msg("failed to commit tier records")
		return fmt.Errorf("failed to commit tier records: %w", err)
	}
	return nil
}
