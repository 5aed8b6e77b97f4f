package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/openphotolib/photolib/internal/auth/domain"
)

type authorizationCodesRepo struct {
	db dbtx
}

func (r *authorizationCodesRepo) CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (id, user_id, client_id, code_hash,
			redirect_uri, scopes, expires_at, used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.ID, code.UserID, code.ClientID, code.CodeHash,
		code.RedirectURI, joinScopes(code.Scopes), code.ExpiresAt, code.Used, code.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *authorizationCodesRepo) GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, client_id, code_hash, redirect_uri, scopes,
			expires_at, used, created_at
		FROM authorization_codes WHERE code_hash = ?`, hash)

	var (
		c      domain.AuthorizationCode
		scopes string
	)
	err := row.Scan(
		&c.ID, &c.UserID, &c.ClientID, &c.CodeHash, &c.RedirectURI, &scopes,
		&c.ExpiresAt, &c.Used, &c.CreatedAt,
	)
	if err != nil {
		return domain.AuthorizationCode{}, mapNotFound(err)
	}
	c.Scopes = splitScopes(scopes)
	return c, nil
}

// ConsumeAuthorizationCode is the single-use check. One conditional UPDATE
// either claims the code or reports that someone else already did; two
// concurrent redemptions can never both succeed.
func (r *authorizationCodesRepo) ConsumeAuthorizationCode(ctx context.Context, hash, clientID string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE authorization_codes
		SET used = 1
		WHERE code_hash = ? AND client_id = ? AND used = 0 AND expires_at > ?`,
		hash, clientID, now,
	)
	if err != nil {
		return false, err
	}
	return oneRow(res)
}

func (r *authorizationCodesRepo) DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM authorization_codes WHERE used = 1 OR expires_at <= ?`, now)
	return err
}

func oneRow(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
