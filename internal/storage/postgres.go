package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", config.Host),
		zap.String("dbname", config.DBName))

	return storage, nil
}

func (s *PostgresStorage) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

func (s *PostgresStorage) LoadToken(ctx context.Context, chatID int64) (string, error) {
	query := `
		UPDATE chat_sessions
		SET last_used_at = NOW()
		WHERE chat_id = $1
		RETURNING token`

	var token string
	err := s.db.QueryRowContext(ctx, query, chatID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("error loading token: %w", err)
	}

	return token, nil
}

func (s *PostgresStorage) SaveToken(ctx context.Context, chatID int64, token string) error {
	query := `
		INSERT INTO chat_sessions (chat_id, token)
		VALUES ($1, $2)
		ON CONFLICT (chat_id) DO UPDATE
		SET token = EXCLUDED.token, last_used_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, chatID, token); err != nil {
		return fmt.Errorf("error saving token: %w", err)
	}

	return nil
}

func (s *PostgresStorage) DeleteToken(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("error deleting token: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("error pinging database: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
