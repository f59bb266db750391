package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"runline/internal/domain"
)

// HashToken returns a stable SHA-256 hex digest for the provided token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// InsertFunctionRunToken stores a hashed execution capability bound to one
// (run, function run) pair. TokenHash must already contain the hashed value.
func (r Repo) InsertFunctionRunToken(ctx context.Context, tx *sql.Tx, t domain.FunctionRunToken) error {
	if t.ID == "" {
		return errors.New("id required")
	}
	if t.RunID == "" || t.FunctionRunID == "" {
		return errors.New("run_id and function_run_id required")
	}
	if t.TokenHash == "" {
		return errors.New("token_hash required")
	}
	if t.CreatedAt == "" {
		t.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	exec := r.execer(tx)
	_, err := exec(ctx, `INSERT INTO function_run_tokens(id,run_id,function_run_id,token_hash,created_at) VALUES (?,?,?,?,?)`,
		t.ID, t.RunID, t.FunctionRunID, t.TokenHash, t.CreatedAt)
	return err
}

// GetFunctionRunTokenByHash returns the token record for a presented
// capability, or ErrNotFound.
func (r Repo) GetFunctionRunTokenByHash(ctx context.Context, hash string) (domain.FunctionRunToken, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, run_id, function_run_id, token_hash, created_at FROM function_run_tokens WHERE token_hash=? LIMIT 1`, hash)
	var t domain.FunctionRunToken
	err := row.Scan(&t.ID, &t.RunID, &t.FunctionRunID, &t.TokenHash, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.FunctionRunToken{}, ErrNotFound
	}
	if err != nil {
		return domain.FunctionRunToken{}, err
	}
	return t, nil
}

// InsertAPIKey stores a hashed API key for a user.
func (r Repo) InsertAPIKey(ctx context.Context, tx *sql.Tx, key domain.APIKey) error {
	if key.ID == "" {
		return errors.New("id required")
	}
	if key.UserID == "" {
		return errors.New("user_id required")
	}
	if key.KeyHash == "" {
		return errors.New("key_hash required")
	}
	if key.CreatedAt == "" {
		key.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	exec := r.execer(tx)
	_, err := exec(ctx, `INSERT INTO api_keys(id,user_id,name,key_hash,created_at) VALUES (?,?,?,?,?)`,
		key.ID, key.UserID, nullable(key.Name), key.KeyHash, key.CreatedAt)
	return err
}

// GetAPIKeyByHash returns an API key by its hashed value.
func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, user_id, COALESCE(name,''), key_hash, created_at FROM api_keys WHERE key_hash=? LIMIT 1`, hash)
	var key domain.APIKey
	err := row.Scan(&key.ID, &key.UserID, &key.Name, &key.KeyHash, &key.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.APIKey{}, ErrNotFound
	}
	if err != nil {
		return domain.APIKey{}, err
	}
	return key, nil
}

// DeleteAPIKey deletes an API key by ID.
func (r Repo) DeleteAPIKey(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id required")
	}
	_, err := r.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	return err
}
