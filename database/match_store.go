package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"versus-service/models"
	"versus-service/services"
)

// MatchStore 是 RecordStore 的 Postgres 实现。
// Update 在一个事务里用 SELECT ... FOR UPDATE 锁行,
// 同一比赛的并发更新由行锁串行化;回调返回错误则回滚,
// 行内容保持不变。
type MatchStore struct {
	db *sql.DB
}

func NewMatchStore(db *sql.DB) *MatchStore {
	return &MatchStore{db: db}
}

const matchColumns = `match_code, player1_id, player2_id, status,
	current_question_index, total_questions, player1_score, player2_score,
	winner_id, started_at, completed_at, chat_messages, state,
	created_at, updated_at`

// Get 实现 RecordStore 接口
func (s *MatchStore) Get(ctx context.Context, code string) (*models.Match, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE match_code = $1`, code)
	return scanMatch(row)
}

// Create 实现 RecordStore 接口
func (s *MatchStore) Create(ctx context.Context, m *models.Match) error {
	chatJSON, stateJSON, err := encodeBlobs(m)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO matches (match_code, player1_id, player2_id, status,
			current_question_index, total_questions, player1_score, player2_score,
			winner_id, started_at, completed_at, chat_messages, state,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, m.MatchCode, m.Player1ID, m.Player2ID, m.Status,
		m.CurrentQuestionIndex, m.TotalQuestions, m.Player1Score, m.Player2Score,
		m.WinnerID, m.StartedAt, m.CompletedAt, chatJSON, stateJSON,
		m.CreatedAt, m.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return services.Conflict("match %s already exists", m.MatchCode)
	}
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}
	return nil
}

// Update 实现 RecordStore 接口: 原子读-改-写
func (s *MatchStore) Update(ctx context.Context, code string, fn func(*models.Match) error) (*models.Match, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 行锁: 同一比赛的并发 Update 在这里排队,
	// 回调看到的永远是上一次提交后的最新记录
	row := tx.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE match_code = $1 FOR UPDATE`, code)
	m, err := scanMatch(row)
	if err != nil {
		return nil, err
	}

	if err := fn(m); err != nil {
		// 回滚,不留下任何部分写入
		return nil, err
	}
	m.UpdatedAt = time.Now()

	chatJSON, stateJSON, err := encodeBlobs(m)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE matches SET
			status = $2,
			current_question_index = $3,
			total_questions = $4,
			player1_score = $5,
			player2_score = $6,
			winner_id = $7,
			started_at = $8,
			completed_at = $9,
			chat_messages = $10,
			state = $11,
			updated_at = $12
		WHERE match_code = $1
	`, m.MatchCode, m.Status, m.CurrentQuestionIndex, m.TotalQuestions,
		m.Player1Score, m.Player2Score, m.WinnerID, m.StartedAt, m.CompletedAt,
		chatJSON, stateJSON, m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update match: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit match update: %w", err)
	}
	return m, nil
}

func encodeBlobs(m *models.Match) ([]byte, []byte, error) {
	chat := m.Chat
	if chat == nil {
		chat = []models.ChatMessage{}
	}
	chatJSON, err := json.Marshal(chat)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal chat messages: %w", err)
	}
	stateJSON, err := json.Marshal(m.State)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal match state: %w", err)
	}
	return chatJSON, stateJSON, nil
}

func scanMatch(row *sql.Row) (*models.Match, error) {
	var m models.Match
	var chatJSON, stateJSON []byte

	err := row.Scan(&m.MatchCode, &m.Player1ID, &m.Player2ID, &m.Status,
		&m.CurrentQuestionIndex, &m.TotalQuestions, &m.Player1Score, &m.Player2Score,
		&m.WinnerID, &m.StartedAt, &m.CompletedAt, &chatJSON, &stateJSON,
		&m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.NotFound("match not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan match: %w", err)
	}

	if len(chatJSON) > 0 {
		if err := json.Unmarshal(chatJSON, &m.Chat); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat messages: %w", err)
		}
	}
	if len(stateJSON) > 0 {
		if err := json.Unmarshal(stateJSON, &m.State); err != nil {
			return nil, fmt.Errorf("failed to unmarshal match state: %w", err)
		}
	}
	return &m, nil
}
