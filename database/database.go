package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Connect 连接到数据库
func Connect(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

// Migrate 运行数据库迁移
func Migrate(db *sql.DB) error {
	migrations := []string{
		// 比赛表: 一场比赛一行,状态机文档整体存为 JSONB。
		// 行级锁 (SELECT ... FOR UPDATE) 保证同一比赛的更新串行化。
		`CREATE TABLE IF NOT EXISTS matches (
			match_code VARCHAR(64) PRIMARY KEY,
			player1_id VARCHAR(100) NOT NULL,
			player2_id VARCHAR(100) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			current_question_index INTEGER NOT NULL DEFAULT 0,
			total_questions INTEGER NOT NULL,
			player1_score INTEGER NOT NULL DEFAULT 0,
			player2_score INTEGER NOT NULL DEFAULT 0,
			winner_id VARCHAR(100),
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			chat_messages JSONB NOT NULL DEFAULT '[]',
			state JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_player1_id ON matches(player1_id)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_player2_id ON matches(player2_id)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
