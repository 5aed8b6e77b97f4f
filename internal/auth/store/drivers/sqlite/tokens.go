package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/openphotolib/photolib/internal/auth/domain"
)

type tokensRepo struct {
	db dbtx
}

const tokenColumns = `id, user_id, client_id, access_hash, refresh_hash,
	scopes, issued_at, expires_at, last_used, created_at`

func scanToken(row *sql.Row) (domain.Token, error) {
	var (
		t        domain.Token
		scopes   string
		lastUsed sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.ClientID, &t.AccessHash, &t.RefreshHash,
		&scopes, &t.IssuedAt, &t.ExpiresAt, &lastUsed, &t.CreatedAt,
	)
	if err != nil {
		return domain.Token{}, mapNotFound(err)
	}
	t.Scopes = splitScopes(scopes)
	t.LastUsed = mapNullTimePtr(lastUsed)
	return t, nil
}

func (r *tokensRepo) CreateToken(ctx context.Context, t domain.Token) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (id, user_id, client_id, access_hash, refresh_hash,
			scopes, issued_at, expires_at, last_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.ClientID, t.AccessHash, t.RefreshHash,
		joinScopes(t.Scopes), t.IssuedAt, t.ExpiresAt, mapOptionalTime(t.LastUsed), t.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *tokensRepo) GetTokenByAccessHash(ctx context.Context, hash string) (domain.Token, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE access_hash = ?`, hash)
	return scanToken(row)
}

func (r *tokensRepo) GetTokenByRefreshHash(ctx context.Context, clientID, hash string) (domain.Token, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE client_id = ? AND refresh_hash = ?`,
		clientID, hash)
	return scanToken(row)
}

// RotateToken replaces both hashes and the validity window in one
// conditional UPDATE. The WHERE on the old refresh hash means only one of
// any concurrent rotations wins; the losers see false and must refuse.
func (r *tokensRepo) RotateToken(ctx context.Context, clientID, oldRefreshHash, newAccessHash, newRefreshHash string, issuedAt, expiresAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tokens
		SET access_hash = ?, refresh_hash = ?, issued_at = ?, expires_at = ?, last_used = NULL
		WHERE client_id = ? AND refresh_hash = ?`,
		newAccessHash, newRefreshHash, issuedAt, expiresAt,
		clientID, oldRefreshHash,
	)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

// ValidateAccessToken checks liveness and stamps last_used in one
// statement so validation never races with rotation or revocation.
func (r *tokensRepo) ValidateAccessToken(ctx context.Context, accessHash string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tokens
		SET last_used = ?
		WHERE access_hash = ? AND issued_at <= ? AND expires_at > ?`,
		now, accessHash, now, now,
	)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

func (r *tokensRepo) DeleteTokenByEitherHash(ctx context.Context, hash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM tokens WHERE access_hash = ? OR refresh_hash = ?`,
		hash, hash,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *tokensRepo) DeleteAllUserTokens(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE user_id = ?`, userID)
	return err
}

// DeleteExpiredTokens drops rows whose access token expired before
// olderThan and whose refresh token has not been exercised since. Live
// refresh tokens keep their row alive.
func (r *tokensRepo) DeleteExpiredTokens(ctx context.Context, olderThan time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM tokens
		WHERE expires_at <= ?
		  AND (last_used IS NULL OR last_used <= ?)`,
		olderThan, olderThan,
	)
	return err
}
