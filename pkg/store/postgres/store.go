package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/model"
	"github.com/pzverkov/pqshare/pkg/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	db   dbtx
}

// New wraps pool. The schema must already be migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

// --- shares ---

const shareColumns = `share_id, share_type, owner_id, payload_ref, original_filename, file_size,
	cipher_suite, created_at, expiry_time, max_downloads, download_count, is_active,
	kem_ciphertext, kem_algorithm, kem_key_id, kem_generation,
	target_user_id, target_kem_ciphertext, target_kem_algorithm`

func scanShare(row pgx.Row) (*model.ShareRecord, error) {
	var (
		r                                        model.ShareRecord
		shareType                                string
		suite                                    int16
		kemAlg, kemKeyID, kemGen, target, tgtAlg *string
	)
	err := row.Scan(
		&r.ShareID, &shareType, &r.OwnerID, &r.PayloadRef, &r.OriginalFilename, &r.FileSize,
		&suite, &r.CreatedAt, &r.ExpiryTime, &r.MaxDownloads, &r.DownloadCount, &r.IsActive,
		&r.KEMCiphertext, &kemAlg, &kemKeyID, &kemGen,
		&target, &r.TargetKEMCiphertext, &tgtAlg,
	)
	if err != nil {
		return nil, err
	}
	r.Type = model.ShareType(shareType)
	r.CipherSuite = constants.CipherSuite(suite)
	r.KEMAlgorithm = derefString(kemAlg)
	r.KEMKeyID = derefString(kemKeyID)
	r.KEMGeneration = derefString(kemGen)
	r.TargetUserID = derefString(target)
	r.TargetKEMAlgorithm = derefString(tgtAlg)
	return &r, nil
}

func (s *Store) Create(ctx context.Context, r *model.ShareRecord) error {
	query := `INSERT INTO shares (` + shareColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := s.db.Exec(ctx, query,
		r.ShareID, string(r.Type), r.OwnerID, r.PayloadRef, r.OriginalFilename, r.FileSize,
		int16(r.CipherSuite), r.CreatedAt, r.ExpiryTime, r.MaxDownloads, r.DownloadCount, r.IsActive,
		r.KEMCiphertext, nullString(r.KEMAlgorithm), nullString(r.KEMKeyID), nullString(r.KEMGeneration),
		nullString(r.TargetUserID), r.TargetKEMCiphertext, nullString(r.TargetKEMAlgorithm),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: share %s", qerrors.ErrConflict, r.ShareID)
		}
		return fmt.Errorf("postgres: create share: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, shareID string) (*model.ShareRecord, error) {
	r, err := scanShare(s.db.QueryRow(ctx, `SELECT `+shareColumns+` FROM shares WHERE share_id = $1`, shareID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, qerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get share: %w", err)
	}
	return r, nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*model.ShareRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+shareColumns+` FROM shares WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list shares: %w", err)
	}
	defer rows.Close()

	var out []*model.ShareRecord
	for rows.Next() {
		r, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan share: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list shares: %w", err)
	}
	return out, nil
}

// Consume is a single conditional UPDATE, so concurrent redemptions are
// serialized by the row lock. A refused consume re-reads the row to report
// why.
func (s *Store) Consume(ctx context.Context, shareID string, now time.Time) (*model.ShareRecord, error) {
	query := `UPDATE shares SET download_count = download_count + 1
		WHERE share_id = $1
		  AND is_active
		  AND expiry_time > $2
		  AND (max_downloads IS NULL OR download_count < max_downloads)
		RETURNING ` + shareColumns

	r, err := scanShare(s.db.QueryRow(ctx, query, shareID, now))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: consume share: %w", err)
	}

	cur, err := s.Get(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if err := cur.State(now).Err(); err != nil {
		return nil, err
	}
	return nil, qerrors.ErrExpiredOrExhausted
}

func (s *Store) Deactivate(ctx context.Context, shareID, ownerID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE shares SET is_active = FALSE WHERE share_id = $1 AND owner_id = $2`, shareID, ownerID)
	if err != nil {
		return fmt.Errorf("postgres: deactivate share: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.Get(ctx, shareID); err != nil {
		return err
	}
	return qerrors.ErrAccessDenied
}

// --- user keys ---

func (s *Store) GetUserKeys(ctx context.Context, userID string) (*model.UserKeys, error) {
	var (
		k   model.UserKeys
		enc []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT user_id, algorithm, public_key, encrypted_private_key, created_at
		 FROM user_keys WHERE user_id = $1`, userID,
	).Scan(&k.UserID, &k.Algorithm, &k.PublicKey, &enc, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, qerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get user keys: %w", err)
	}
	if k.EncryptedPrivateKey, err = model.ParseEncryptedPrivateKey(enc); err != nil {
		return nil, fmt.Errorf("postgres: user %s: %w", userID, err)
	}
	return &k, nil
}

func (s *Store) InsertUserKeys(ctx context.Context, k *model.UserKeys) error {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO user_keys (user_id, algorithm, public_key, encrypted_private_key, created_at)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (user_id) DO NOTHING`,
		k.UserID, k.Algorithm, k.PublicKey, k.EncryptedPrivateKey.Encode(), k.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert user keys: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return qerrors.ErrConflict
	}
	return nil
}

func (s *Store) ResetAllUserKeys(ctx context.Context) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM user_keys`)
	if err != nil {
		return 0, fmt.Errorf("postgres: reset user keys: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// --- server keys ---

const serverKeyColumns = `generation, key_id, algorithm, public_key, encrypted_private_key, created_at, is_active`

func scanServerKey(row pgx.Row) (*model.ServerKey, error) {
	var (
		k   model.ServerKey
		enc []byte
	)
	if err := row.Scan(&k.Generation, &k.KeyID, &k.Algorithm, &k.PublicKey, &enc, &k.CreatedAt, &k.Active); err != nil {
		return nil, err
	}
	var err error
	if k.EncryptedPrivateKey, err = model.ParseEncryptedPrivateKey(enc); err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *Store) serverKey(ctx context.Context, where string, arg any) (*model.ServerKey, error) {
	k, err := scanServerKey(s.db.QueryRow(ctx, `SELECT `+serverKeyColumns+` FROM server_keys WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, qerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get server key: %w", err)
	}
	return k, nil
}

func (s *Store) ActiveServerKey(ctx context.Context, keyID string) (*model.ServerKey, error) {
	return s.serverKey(ctx, `key_id = $1 AND is_active`, keyID)
}

func (s *Store) ServerKeyByGeneration(ctx context.Context, generation string) (*model.ServerKey, error) {
	return s.serverKey(ctx, `generation = $1`, generation)
}

func (s *Store) RotateServerKey(ctx context.Context, k *model.ServerKey, replaces string) error {
	err := runInTx(ctx, s.pool, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx,
			`SELECT generation FROM server_keys WHERE key_id = $1 AND is_active FOR UPDATE`, k.KeyID,
		).Scan(&current)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("postgres: lock server key: %w", err)
		}
		if current != replaces {
			return qerrors.ErrConflict
		}

		if current != "" {
			if _, err := tx.Exec(ctx,
				`UPDATE server_keys SET is_active = FALSE WHERE generation = $1`, current); err != nil {
				return fmt.Errorf("postgres: deactivate server key: %w", err)
			}
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO server_keys (`+serverKeyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, TRUE)`,
			k.Generation, k.KeyID, k.Algorithm, k.PublicKey, k.EncryptedPrivateKey.Encode(), k.CreatedAt)
		return err
	})
	if isUniqueViolation(err) {
		return qerrors.ErrConflict
	}
	if err != nil && !errors.Is(err, qerrors.ErrConflict) {
		return fmt.Errorf("postgres: rotate server key: %w", err)
	}
	return err
}

// --- files ---

func (s *Store) CreateFile(ctx context.Context, f *model.StoredFile) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO stored_files (id, owner_id, blob_ref, salt, original_filename, size, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.OwnerID, f.BlobRef, f.Salt, f.OriginalFilename, f.Size, f.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: file %s", qerrors.ErrConflict, f.ID)
	}
	if err != nil {
		return fmt.Errorf("postgres: create file: %w", err)
	}
	return nil
}

const fileColumns = `id, owner_id, blob_ref, salt, original_filename, size, created_at`

func scanFile(row pgx.Row) (*model.StoredFile, error) {
	var f model.StoredFile
	err := row.Scan(&f.ID, &f.OwnerID, &f.BlobRef, &f.Salt, &f.OriginalFilename, &f.Size, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) GetFile(ctx context.Context, id string) (*model.StoredFile, error) {
	f, err := scanFile(s.db.QueryRow(ctx, `SELECT `+fileColumns+` FROM stored_files WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, qerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get file: %w", err)
	}
	return f, nil
}

func (s *Store) ListFiles(ctx context.Context, ownerID string) ([]*model.StoredFile, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+fileColumns+` FROM stored_files WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list files: %w", err)
	}
	defer rows.Close()

	var out []*model.StoredFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan file: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list files: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteFile(ctx context.Context, id, ownerID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM stored_files WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("postgres: delete file: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetFile(ctx, id); err != nil {
		return err
	}
	return qerrors.ErrAccessDenied
}
