package custody

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/kem"
	"github.com/pzverkov/pqshare/pkg/metrics"
	"github.com/pzverkov/pqshare/pkg/model"
)

func (s *Service) rotationPeriod() time.Duration {
	return time.Duration(s.cfg.RotationDays) * 24 * time.Hour
}

func (s *Service) serverSecret() []byte {
	return []byte(constants.ServerKeyContext)
}

// EnsureServerKey returns the active server key, creating the first
// generation or rotating an expired one as needed.
func (s *Service) EnsureServerKey(ctx context.Context) (*PublicKey, error) {
	k, err := s.servers.ActiveServerKey(ctx, s.cfg.ServerKeyID)
	switch {
	case qerrors.Is(err, qerrors.ErrNotFound):
		return s.rotate(ctx, "", "initial")
	case err != nil:
		return nil, err
	case k.DueForRotation(s.now(), s.rotationPeriod()):
		return s.rotate(ctx, k.Generation, "age")
	}
	return serverPublicKey(k), nil
}

// RotateServerKey replaces the active server key with a new generation.
// Earlier generations stay available for unwrapping.
func (s *Service) RotateServerKey(ctx context.Context) (*PublicKey, error) {
	var replaces string
	k, err := s.servers.ActiveServerKey(ctx, s.cfg.ServerKeyID)
	switch {
	case err == nil:
		replaces = k.Generation
	case !qerrors.Is(err, qerrors.ErrNotFound):
		return nil, err
	}
	return s.rotate(ctx, replaces, "manual")
}

// rotate installs a new generation in place of replaces. When another
// instance wins the race the winner's key is returned.
func (s *Service) rotate(ctx context.Context, replaces, reason string) (*PublicKey, error) {
	ctx, end := s.tracer.StartSpan(ctx, metrics.SpanServerKeyRotate,
		metrics.WithAttributes(metrics.SpanAttributes{KEMAlgorithm: s.scheme.Name()}.ToMap()))

	k, err := s.newServerKey(ctx)
	if err == nil {
		err = s.servers.RotateServerKey(ctx, k, replaces)
	}
	end(err)

	switch {
	case err == nil:
		s.collector.RecordServerKeyRotation()
		s.logger.Info("server key rotated", metrics.Fields{
			"key_id":     s.cfg.ServerKeyID,
			"generation": k.Generation,
			"replaces":   replaces,
			"reason":     reason,
			"kem":        k.Algorithm,
		})
		return serverPublicKey(k), nil
	case qerrors.Is(err, qerrors.ErrConflict):
		s.logger.Debug("server key rotated concurrently", metrics.Fields{"key_id": s.cfg.ServerKeyID})
		return s.CurrentServerKey(ctx)
	default:
		s.logger.Error("server key rotation failed", metrics.Fields{"key_id": s.cfg.ServerKeyID, "error": err})
		return nil, err
	}
}

func (s *Service) newServerKey(ctx context.Context) (*model.ServerKey, error) {
	kp, err := s.scheme.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	defer kp.Zeroize()

	if err := kem.PairwiseCheck(s.scheme, kp); err != nil {
		return nil, err
	}

	generation := uuid.NewString()
	enc, err := s.seal(ctx, s.serverSecret(), kp.PrivateKey, serverBinding(generation))
	if err != nil {
		return nil, err
	}
	return &model.ServerKey{
		Generation:          generation,
		KeyID:               s.cfg.ServerKeyID,
		Algorithm:           kp.Algorithm,
		PublicKey:           kp.PublicKey,
		EncryptedPrivateKey: enc,
		CreatedAt:           s.now().UTC(),
		Active:              true,
	}, nil
}

// CurrentServerKey returns the active generation without creating one.
func (s *Service) CurrentServerKey(ctx context.Context) (*PublicKey, error) {
	k, err := s.servers.ActiveServerKey(ctx, s.cfg.ServerKeyID)
	if err != nil {
		return nil, keyLookupError(err)
	}
	return serverPublicKey(k), nil
}

// ServerPublicKey returns the public key of a specific generation.
func (s *Service) ServerPublicKey(ctx context.Context, generation string) (*PublicKey, error) {
	cacheKey := "server:" + generation
	if pk, ok := s.cacheGet(cacheKey); ok {
		return pk, nil
	}
	k, err := s.servers.ServerKeyByGeneration(ctx, generation)
	if err != nil {
		return nil, keyLookupError(err)
	}
	pk := serverPublicKey(k)
	s.cacheAdd(cacheKey, pk)
	return pk, nil
}

// ServerPrivateKey decrypts the private key of a generation, active or not.
func (s *Service) ServerPrivateKey(ctx context.Context, generation string) (*PrivateKey, error) {
	k, err := s.servers.ServerKeyByGeneration(ctx, generation)
	if err != nil {
		return nil, keyLookupError(err)
	}
	sk, err := s.open(ctx, s.serverSecret(), k.EncryptedPrivateKey, serverBinding(generation))
	if err != nil {
		s.logger.Error("server private key did not decrypt", metrics.Fields{"generation": generation, "error": err})
		return nil, err
	}
	return &PrivateKey{Algorithm: k.Algorithm, bytes: sk}, nil
}

// RunRotation checks the server key every interval until ctx ends.
func (s *Service) RunRotation(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.EnsureServerKey(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("server key check failed", metrics.Fields{"error": err})
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func serverPublicKey(k *model.ServerKey) *PublicKey {
	return &PublicKey{Algorithm: k.Algorithm, Generation: k.Generation, Bytes: k.PublicKey}
}
