package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"filevault/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS files (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users (id),
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    parent_id TEXT NOT NULL DEFAULT '0',
    is_public BOOLEAN NOT NULL DEFAULT FALSE,
    local_path TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS files_user_parent_idx ON files (user_id, parent_id, created_at);
`

const uniqueViolationCode = "23505"

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// NewPostgresRepository opens a Postgres-backed repository and ensures the
// schema exists.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...PostgresOption) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &postgresRepository{pool: pool, cfg: cfg}, nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func (r *postgresRepository) CreateUser(ctx context.Context, params CreateUserParams) (models.User, error) {
	email := normalizeEmail(params.Email)
	if email == "" {
		return models.User{}, fmt.Errorf("email is required")
	}
	if params.PasswordHash == "" {
		return models.User{}, fmt.Errorf("password hash is required")
	}
	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}
	row := r.pool.QueryRow(ctx, `
INSERT INTO users (id, email, password_hash)
VALUES ($1, $2, $3)
RETURNING id, email, password_hash, created_at
`, id, email, params.PasswordHash)
	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrEmailExists
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) GetUser(ctx context.Context, id string) (models.User, bool, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, email, password_hash, created_at
FROM users
WHERE id = $1
`, id)
	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, false, nil
		}
		return models.User{}, false, fmt.Errorf("get user: %w", err)
	}
	return user, true, nil
}

func (r *postgresRepository) GetUserByEmail(ctx context.Context, email string) (models.User, bool, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, email, password_hash, created_at
FROM users
WHERE email = $1
`, normalizeEmail(email))
	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, false, nil
		}
		return models.User{}, false, fmt.Errorf("get user by email: %w", err)
	}
	return user, true, nil
}

func (r *postgresRepository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (r *postgresRepository) CreateFile(ctx context.Context, params CreateFileParams) (models.File, error) {
	if params.UserID == "" {
		return models.File{}, fmt.Errorf("user id is required")
	}
	if params.Name == "" {
		return models.File{}, fmt.Errorf("name is required")
	}
	if !params.Type.Valid() {
		return models.File{}, fmt.Errorf("invalid file type %q", params.Type)
	}
	parentID := params.ParentID
	if parentID == "" {
		parentID = models.RootParentID
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.File{}, fmt.Errorf("begin create file: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if parentID != models.RootParentID {
		var parentType string
		err := tx.QueryRow(ctx, `SELECT type FROM files WHERE id = $1`, parentID).Scan(&parentType)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.File{}, ErrParentNotFound
		}
		if err != nil {
			return models.File{}, fmt.Errorf("look up parent: %w", err)
		}
		if models.FileType(parentType) != models.FileTypeFolder {
			return models.File{}, ErrParentNotFolder
		}
	}

	id, err := generateID()
	if err != nil {
		return models.File{}, err
	}
	row := tx.QueryRow(ctx, `
INSERT INTO files (id, user_id, name, type, parent_id, is_public, local_path)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, user_id, name, type, parent_id, is_public, local_path, created_at
`, id, params.UserID, params.Name, string(params.Type), parentID, params.IsPublic, params.LocalPath)
	file, err := scanFile(row)
	if err != nil {
		return models.File{}, fmt.Errorf("create file: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.File{}, fmt.Errorf("commit create file: %w", err)
	}
	return file, nil
}

func (r *postgresRepository) GetFile(ctx context.Context, id string) (models.File, bool, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, user_id, name, type, parent_id, is_public, local_path, created_at
FROM files
WHERE id = $1
`, id)
	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.File{}, false, nil
		}
		return models.File{}, false, fmt.Errorf("get file: %w", err)
	}
	return file, true, nil
}

func (r *postgresRepository) ListFiles(ctx context.Context, userID, parentID string, page int) ([]models.File, error) {
	if page < 0 {
		page = 0
	}
	if parentID == "" {
		parentID = models.RootParentID
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, name, type, parent_id, is_public, local_path, created_at
FROM files
WHERE user_id = $1 AND parent_id = $2
ORDER BY created_at, id
LIMIT $3 OFFSET $4
`, userID, parentID, PageSize, page*PageSize)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := make([]models.File, 0, PageSize)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

func (r *postgresRepository) SetFilePublic(ctx context.Context, id, userID string, public bool) (models.File, bool, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE files
SET is_public = $3
WHERE id = $1 AND user_id = $2
RETURNING id, user_id, name, type, parent_id, is_public, local_path, created_at
`, id, userID, public)
	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.File{}, false, nil
		}
		return models.File{}, false, fmt.Errorf("set file visibility: %w", err)
	}
	return file, true, nil
}

func (r *postgresRepository) CountFiles(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM files`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return count, nil
}

func scanFile(row pgx.Row) (models.File, error) {
	var file models.File
	var fileType string
	if err := row.Scan(&file.ID, &file.UserID, &file.Name, &fileType, &file.ParentID, &file.IsPublic, &file.LocalPath, &file.CreatedAt); err != nil {
		return models.File{}, err
	}
	file.Type = models.FileType(fileType)
	return file, nil
}

var _ Repository = (*postgresRepository)(nil)
