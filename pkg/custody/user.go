package custody

import (
	"context"
	"fmt"

	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/kem"
	"github.com/pzverkov/pqshare/pkg/metrics"
	"github.com/pzverkov/pqshare/pkg/model"
)

// EnsureUserKeys creates a keypair for userID unless one exists. It reports
// whether the user has keys afterwards; failures are returned wrapped in
// ErrKeyUnavailable and never leave a partial record behind.
//
// Concurrent calls for the same user are safe: the loser of the insert race
// keeps the winner's keys.
func (s *Service) EnsureUserKeys(ctx context.Context, userID, password string) (bool, error) {
	if userID == "" {
		return false, qerrors.NewCryptoError("custody.EnsureUserKeys", qerrors.ErrInvalidMessage)
	}
	if ok, err := s.HasUserKeys(ctx, userID); err != nil || ok {
		return ok, err
	}

	ctx, end := s.tracer.StartSpan(ctx, metrics.SpanUserKeysEnsure,
		metrics.WithAttributes(metrics.SpanAttributes{KEMAlgorithm: s.scheme.Name()}.ToMap()))
	created, err := s.createUserKeys(ctx, userID, password)
	end(err)
	if err != nil {
		s.logger.Error("user key generation failed", metrics.Fields{"user_id": userID, "error": err})
		return false, fmt.Errorf("%w: %w", qerrors.ErrKeyUnavailable, err)
	}
	if created {
		s.collector.RecordUserKeysGenerated()
		s.logger.Info("user keys generated", metrics.Fields{"user_id": userID, "kem": s.scheme.Name()})
	}
	return true, nil
}

func (s *Service) createUserKeys(ctx context.Context, userID, password string) (bool, error) {
	kp, err := s.scheme.GenerateKeyPair()
	if err != nil {
		return false, err
	}
	defer kp.Zeroize()

	if err := kem.PairwiseCheck(s.scheme, kp); err != nil {
		return false, err
	}

	enc, err := s.seal(ctx, []byte(password), kp.PrivateKey, userBinding(userID))
	if err != nil {
		return false, err
	}

	err = s.users.InsertUserKeys(ctx, &model.UserKeys{
		UserID:              userID,
		Algorithm:           kp.Algorithm,
		PublicKey:           kp.PublicKey,
		EncryptedPrivateKey: enc,
		CreatedAt:           s.now().UTC(),
	})
	switch {
	case err == nil:
		return true, nil
	case qerrors.Is(err, qerrors.ErrConflict):
		return false, nil
	default:
		return false, err
	}
}

// HasUserKeys reports whether userID has a stored keypair.
func (s *Service) HasUserKeys(ctx context.Context, userID string) (bool, error) {
	_, err := s.users.GetUserKeys(ctx, userID)
	switch {
	case err == nil:
		return true, nil
	case qerrors.Is(err, qerrors.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// UserPublicKey returns the user's public key, or ErrKeyUnavailable.
func (s *Service) UserPublicKey(ctx context.Context, userID string) (*PublicKey, error) {
	cacheKey := "user:" + userID
	if pk, ok := s.cacheGet(cacheKey); ok {
		return pk, nil
	}

	k, err := s.users.GetUserKeys(ctx, userID)
	if err != nil {
		return nil, keyLookupError(err)
	}
	pk := &PublicKey{Algorithm: k.Algorithm, Bytes: k.PublicKey}
	s.cacheAdd(cacheKey, pk)
	return pk, nil
}

// UserPrivateKey decrypts the user's private key with password. A wrong
// password yields ErrAuthenticationFailed; missing keys ErrKeyUnavailable.
func (s *Service) UserPrivateKey(ctx context.Context, userID, password string) (*PrivateKey, error) {
	k, err := s.users.GetUserKeys(ctx, userID)
	if err != nil {
		return nil, keyLookupError(err)
	}
	sk, err := s.open(ctx, []byte(password), k.EncryptedPrivateKey, userBinding(userID))
	if err != nil {
		return nil, err
	}
	return &PrivateKey{Algorithm: k.Algorithm, bytes: sk}, nil
}

// ResetUserKeys deletes every user keypair. Data wrapped to those keys
// becomes unrecoverable; it exists for password-reset flows in development.
func (s *Service) ResetUserKeys(ctx context.Context) (int, error) {
	n, err := s.users.ResetAllUserKeys(ctx)
	if err != nil {
		return 0, err
	}
	if s.pubCache != nil {
		s.pubCache.Purge()
	}
	s.logger.Warn("all user keys deleted", metrics.Fields{"count": n})
	return n, nil
}

func keyLookupError(err error) error {
	if qerrors.Is(err, qerrors.ErrNotFound) {
		return fmt.Errorf("%w: %w", qerrors.ErrKeyUnavailable, err)
	}
	return err
}
