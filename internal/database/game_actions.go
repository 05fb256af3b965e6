// internal/database/game_actions.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/njuka/internal/cache"
	"github.com/jason-s-yu/njuka/internal/models"
)

// ActionStore writes historian batches to the games and game_actions tables.
type ActionStore struct {
	pool *pgxpool.Pool
}

func NewActionStore(pool *pgxpool.Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

// InsertGameActions writes a batch in a single transaction. Replayed records are ignored.
func (s *ActionStore) InsertGameActions(ctx context.Context, records []cache.ActionRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			if err := insertGameActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertGameActionTx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("flush %d game actions: %w", len(records), err)
	}
	return nil
}

// MarkGameAbandoned flags a game that went quiet while still in progress.
func (s *ActionStore) MarkGameAbandoned(ctx context.Context, gameID uuid.UUID) error {
	q := `
		UPDATE games
		SET status = 'abandoned', end_time = NOW()
		WHERE id = $1 AND status = 'in_progress'
	`
	if _, err := s.pool.Exec(ctx, q, gameID); err != nil {
		return fmt.Errorf("failed to mark game %v abandoned: %w", gameID, err)
	}
	return nil
}

// insertGameActionTx upserts the game row, inserts the action and closes the game on a terminal action.
func insertGameActionTx(ctx context.Context, tx pgx.Tx, rec cache.ActionRecord) error {
	upsertGameQ := `
		INSERT INTO games (id, status, start_time)
		VALUES ($1, 'in_progress', NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, upsertGameQ, rec.GameID); err != nil {
		return err
	}

	payload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return err
	}
	at := time.UnixMilli(rec.Timestamp)
	if rec.Timestamp == 0 {
		at = time.Now()
	}
	actionInsertQ := `
		INSERT INTO game_actions (game_id, action_index, actor_user_id, action_type, action_payload, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
		ON CONFLICT (game_id, action_index) DO NOTHING
	`
	if _, err := tx.Exec(ctx, actionInsertQ, rec.GameID, rec.ActionIndex, rec.ActorUserID, rec.ActionType, payload, at); err != nil {
		return err
	}

	if status := terminalStatus(models.GameAction(rec.ActionType)); status != "" {
		finalizeQ := `
			UPDATE games
			SET status = $2, end_time = $3
			WHERE id = $1 AND status = 'in_progress'
		`
		if _, err := tx.Exec(ctx, finalizeQ, rec.GameID, status, at); err != nil {
			return err
		}
	}
	return nil
}

// terminalStatus maps an action that ends a game to the stored game status.
func terminalStatus(action models.GameAction) string {
	switch action {
	case models.ActionWin:
		return "completed"
	case models.ActionForfeit:
		return "forfeited"
	case models.ActionCancel:
		return "cancelled"
	}
	return ""
}
