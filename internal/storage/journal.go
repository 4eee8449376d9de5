package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"webbuilder/internal/models"
)

const stateLastCode = "last_code"

// Journal persists the conversation and the last generated code.
type Journal struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

func NewJournal(db *sql.DB, driver string) *Journal {
	return &Journal{db: db, driver: strings.ToLower(driver), now: time.Now}
}

func (j *Journal) AppendMessage(ctx context.Context, msg models.Message) error {
	createdAt := msg.Timestamp
	if createdAt.IsZero() {
		createdAt = j.now()
	}
	if _, err := j.db.ExecContext(ctx,
		`INSERT INTO messages (role, content, created_at) VALUES (?, ?, ?)`,
		string(msg.Role), msg.Content, createdAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (j *Journal) SaveGeneratedCode(ctx context.Context, code string) error {
	query := `INSERT INTO agent_state (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if j.driver == "mysql" {
		query = `INSERT INTO agent_state (name, value, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)`
	}
	if _, err := j.db.ExecContext(ctx, query, stateLastCode, code, j.now().UTC()); err != nil {
		return fmt.Errorf("save generated code: %w", err)
	}
	return nil
}

// Clear removes every message and the stored code in one transaction.
func (j *Journal) Clear(ctx context.Context) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_state WHERE name = ?`, stateLastCode); err != nil {
		return fmt.Errorf("clear agent state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	return nil
}

// Load returns messages in insertion order and the stored code.
func (j *Journal) Load(ctx context.Context) ([]models.Message, string, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT role, content, created_at FROM messages ORDER BY id ASC`)
	if err != nil {
		return nil, "", fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var history []models.Message
	for rows.Next() {
		var (
			role string
			msg  models.Message
		)
		if err := rows.Scan(&role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, "", fmt.Errorf("scan message: %w", err)
		}
		msg.Role = models.Role(role)
		history = append(history, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate messages: %w", err)
	}

	var code string
	err = j.db.QueryRowContext(ctx, `SELECT value FROM agent_state WHERE name = ?`, stateLastCode).Scan(&code)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("query generated code: %w", err)
	}
	return history, code, nil
}
