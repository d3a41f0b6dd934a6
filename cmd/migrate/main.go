// Command migrate copies a JSON datastore into Postgres, preserving record
// identifiers so issued tokens and parent links keep working.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"filevault/internal/models"
	"filevault/internal/storage"
)

type snapshot struct {
	Users map[string]models.User `json:"users"`
	Files map[string]models.File `json:"files"`
}

func main() {
	jsonPath := flag.String("json", "data/filevault.json", "path to the JSON datastore to migrate")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	dsn := strings.TrimSpace(*postgresDSN)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("FILEVAULT_POSTGRES_DSN"))
	}
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		logger.Error("postgres DSN required", "hint", "set --postgres-dsn, FILEVAULT_POSTGRES_DSN, or DATABASE_URL")
		os.Exit(1)
	}

	snap, err := loadSnapshot(*jsonPath)
	if err != nil {
		logger.Error("failed to load JSON snapshot", "error", err)
		os.Exit(1)
	}
	logger.Info("loaded JSON snapshot", "path", *jsonPath, "users", len(snap.Users), "files", len(snap.Files))

	ctx := context.Background()

	// NewPostgresRepository bootstraps the schema.
	repo, err := storage.NewPostgresRepository(ctx, dsn)
	if err != nil {
		logger.Error("failed to open postgres repository", "error", err)
		os.Exit(1)
	}
	if err := repo.Close(ctx); err != nil {
		logger.Warn("failed to close bootstrap connection", "error", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Error("failed to open postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := importSnapshot(ctx, pool, snap); err != nil {
		logger.Error("failed to import snapshot", "error", err)
		os.Exit(1)
	}

	if err := verifyCounts(ctx, pool, snap); err != nil {
		logger.Error("verification failed", "error", err)
		os.Exit(1)
	}

	logger.Info("migration completed", "users", len(snap.Users), "files", len(snap.Files))
}

func loadSnapshot(path string) (snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return snapshot{}, err
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snapshot{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return snap, nil
}

func importSnapshot(ctx context.Context, pool *pgxpool.Pool, snap snapshot) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for id, user := range snap.Users {
		_, err := tx.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, created_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO NOTHING`,
			id, user.Email, user.PasswordHash, user.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert user %s: %w", id, err)
		}
	}
	for id, file := range snap.Files {
		_, err := tx.Exec(ctx,
			`INSERT INTO files (id, user_id, name, type, parent_id, is_public, local_path, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO NOTHING`,
			id, file.UserID, file.Name, string(file.Type), file.ParentID, file.IsPublic, file.LocalPath, file.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert file %s: %w", id, err)
		}
	}

	return tx.Commit(ctx)
}

func verifyCounts(ctx context.Context, pool *pgxpool.Pool, snap snapshot) error {
	checks := []struct {
		name     string
		query    string
		expected int
	}{
		{"users", "SELECT COUNT(*) FROM users", len(snap.Users)},
		{"files", "SELECT COUNT(*) FROM files", len(snap.Files)},
	}

	for _, check := range checks {
		var actual int
		if err := pool.QueryRow(ctx, check.query).Scan(&actual); err != nil {
			return fmt.Errorf("query %s: %w", check.name, err)
		}
		if actual < check.expected {
			return fmt.Errorf("mismatch for %s: expected at least %d, got %d", check.name, check.expected, actual)
		}
	}
	return nil
}
