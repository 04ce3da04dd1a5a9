package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"account_sync/internal/apperr"
	"account_sync/internal/model"
)

var (
	ErrNotFound        = apperr.E(apperr.NotFound, "store", errors.New("account not found"))
	ErrDuplicateLogin  = apperr.E(apperr.Conflict, "store", errors.New("login already exists"))
	ErrProfileConflict = apperr.E(apperr.Conflict, "store", errors.New("vision profile changed concurrently"))
	ErrProfileAttached = apperr.E(apperr.Conflict, "store", errors.New("account still has a vision profile"))
)

const accountColumns = `id, kind, login, plain_password, email, email_plain_password, facebook_id,
	user_agent, two_fa_token, gender, geo, account_status, uploaded_at, last_activity_at,
	cookie_json, vision_fingerprint, vision_profile_id, profile_state, profile_synced_at,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(sc rowScanner) (model.Account, error) {
	var (
		acc            model.Account
		kind           string
		geo            string
		status         string
		profileState   string
		uploadedAt     sql.NullInt64
		lastActivityAt sql.NullInt64
		syncedAt       sql.NullInt64
		cookie         sql.NullString
		createdAt      int64
		updatedAt      int64
	)
	err := sc.Scan(&acc.ID, &kind, &acc.Login, &acc.PlainPassword, &acc.Email, &acc.EmailPlainPassword,
		&acc.FacebookID, &acc.UserAgent, &acc.TwoFaToken, &acc.Gender, &geo, &status,
		&uploadedAt, &lastActivityAt, &cookie, &acc.VisionFingerprint, &acc.VisionProfileID,
		&profileState, &syncedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, err
	}
	acc.Kind = model.AccountKind(kind)
	acc.Geo = model.ParseGeo(geo)
	acc.AccountStatus = model.ParseAccountStatus(status)
	acc.ProfileState = model.ProfileState(profileState)
	acc.UploadedAt = timePtr(uploadedAt)
	acc.LastActivityAt = timePtr(lastActivityAt)
	acc.ProfileSyncedAt = timePtr(syncedAt)
	if cookie.Valid {
		acc.Cookie = json.RawMessage(cookie.String)
	}
	acc.CreatedAt = time.UnixMilli(createdAt)
	acc.UpdatedAt = time.UnixMilli(updatedAt)
	return acc, nil
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateAccount inserts a new account. Login uniqueness is per kind.
func (s *Store) CreateAccount(ctx context.Context, acc model.Account) (model.Account, error) {
	if strings.TrimSpace(acc.Login) == "" {
		return model.Account{}, apperr.Errorf(apperr.Validation, "store", "login is required")
	}
	if strings.TrimSpace(acc.PlainPassword) == "" {
		return model.Account{}, apperr.Errorf(apperr.Validation, "store", "plainPassword is required")
	}
	if acc.Kind == "" {
		acc.Kind = model.AccountKindFB
	}
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if acc.ProfileState == "" {
		acc.ProfileState = model.ProfileStateNone
	}
	now := s.now()
	acc.CreatedAt = now
	acc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, acc.ID, string(acc.Kind), acc.Login, acc.PlainPassword, acc.Email, acc.EmailPlainPassword, acc.FacebookID,
		acc.UserAgent, acc.TwoFaToken, acc.Gender, acc.Geo.String(), acc.AccountStatus.String(),
		nullMillis(acc.UploadedAt), nullMillis(acc.LastActivityAt), nullJSON(acc.Cookie),
		acc.VisionFingerprint, acc.VisionProfileID, string(acc.ProfileState), nullMillis(acc.ProfileSyncedAt),
		acc.CreatedAt.UnixMilli(), acc.UpdatedAt.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return model.Account{}, ErrDuplicateLogin
		}
		return model.Account{}, fmt.Errorf("create account: %w", err)
	}
	return s.GetAccount(ctx, acc.ID)
}

func (s *Store) GetAccount(ctx context.Context, id string) (model.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// FindAccountByLogin returns (account, true) when a record with that login
// exists for the kind.
func (s *Store) FindAccountByLogin(ctx context.Context, kind model.AccountKind, login string) (model.Account, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE kind = ? AND login = ?
	`, string(kind), login)
	acc, err := scanAccount(row)
	if errors.Is(err, ErrNotFound) {
		return model.Account{}, false, nil
	}
	if err != nil {
		return model.Account{}, false, err
	}
	return acc, true, nil
}

func (s *Store) ListAccounts(ctx context.Context, kind model.AccountKind) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE kind = ? ORDER BY created_at DESC
	`, string(kind))
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

// ListIdleAccounts returns accounts of kind with the given status whose last
// activity happened strictly before the cutoff. Accounts that never had
// activity recorded are not included.
func (s *Store) ListIdleAccounts(ctx context.Context, kind model.AccountKind, status model.AccountStatus, before time.Time) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE kind = ? AND account_status = ? AND last_activity_at IS NOT NULL AND last_activity_at < ?
		ORDER BY id
	`, string(kind), status.String(), before.UnixMilli())
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func collectAccounts(rows *sql.Rows) ([]model.Account, error) {
	defer rows.Close()
	var out []model.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// AttachVisionProfile records a freshly created remote profile. It only
// succeeds while the account has no profile; fp is stored when non-nil and
// no fingerprint is present yet.
func (s *Store) AttachVisionProfile(ctx context.Context, id, profileID string, fp model.Fingerprint) error {
	if profileID == "" {
		return apperr.Errorf(apperr.Validation, "store", "profile id is required")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET
			vision_profile_id = ?,
			vision_fingerprint = CASE WHEN vision_fingerprint = '' THEN ? ELSE vision_fingerprint END,
			profile_state = ?,
			updated_at = ?
		WHERE id = ? AND vision_profile_id = ''
	`, profileID, fp, string(model.ProfileStateCreated), s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("attach vision profile: %w", err)
	}
	return s.checkCAS(ctx, res, id)
}

// ReplaceCookies overwrites the cookie set of an account whose current
// profile is still profileID.
func (s *Store) ReplaceCookies(ctx context.Context, id, profileID string, cookie json.RawMessage, syncedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET
			cookie_json = ?,
			profile_state = ?,
			profile_synced_at = ?,
			updated_at = ?
		WHERE id = ? AND vision_profile_id = ? AND vision_profile_id <> ''
	`, nullJSON(cookie), string(model.ProfileStateSynced), syncedAt.UnixMilli(), s.now().UnixMilli(), id, profileID)
	if err != nil {
		return fmt.Errorf("replace cookies: %w", err)
	}
	return s.checkCAS(ctx, res, id)
}

// DetachVisionProfile clears the profile identifier if it still equals
// profileID. Cookies and fingerprint are left in place.
func (s *Store) DetachVisionProfile(ctx context.Context, id, profileID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET
			vision_profile_id = '',
			profile_state = ?,
			updated_at = ?
		WHERE id = ? AND vision_profile_id = ? AND vision_profile_id <> ''
	`, string(model.ProfileStateNone), s.now().UnixMilli(), id, profileID)
	if err != nil {
		return fmt.Errorf("detach vision profile: %w", err)
	}
	return s.checkCAS(ctx, res, id)
}

func (s *Store) TouchActivity(ctx context.Context, id string, at time.Time) (model.Account, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET last_activity_at = ?, updated_at = ? WHERE id = ?
	`, at.UnixMilli(), s.now().UnixMilli(), id)
	if err != nil {
		return model.Account{}, fmt.Errorf("touch activity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Account{}, err
	}
	if n == 0 {
		return model.Account{}, ErrNotFound
	}
	return s.GetAccount(ctx, id)
}

// DeleteAccount removes an account that has no Vision profile attached, so
// no remote profile is ever orphaned.
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ? AND vision_profile_id = ''`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetAccount(ctx, id); err != nil {
		return err
	}
	return ErrProfileAttached
}

func (s *Store) checkCAS(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.GetAccount(ctx, id); err != nil {
		return err
	}
	return ErrProfileConflict
}
