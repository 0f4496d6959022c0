package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/metrics"
	"github.com/pzverkov/pqshare/pkg/model"
	"github.com/pzverkov/pqshare/pkg/store/postgres"
)

// setupStore starts PostgreSQL in a container and applies migrations.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		tcpostgres.WithDatabase("pqshare_test"),
		tcpostgres.WithUsername("pqshare"),
		tcpostgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("ConnectionString failed: %v", err)
	}

	logger := metrics.NullLogger()
	if err := postgres.Migrate(dsn, logger); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if err := postgres.Migrate(dsn, logger); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	pool, err := postgres.Connect(ctx, dsn, logger)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	s := postgres.New(pool)
	t.Cleanup(s.Close)
	return s
}

func serverKey(gen string) *model.ServerKey {
	return &model.ServerKey{
		Generation: gen,
		KeyID:      "default",
		Algorithm:  "ML-KEM-768",
		PublicKey:  []byte{1, 2, 3},
		EncryptedPrivateKey: model.EncryptedPrivateKey{
			Salt:     make([]byte, 16),
			Envelope: make([]byte, 40),
		},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func publicShare(id, gen string, now time.Time, maxDownloads *int) *model.ShareRecord {
	return &model.ShareRecord{
		ShareID:          id,
		Type:             model.SharePublic,
		OwnerID:          "alice",
		PayloadRef:       "blob-" + id,
		OriginalFilename: "report.pdf",
		FileSize:         10,
		CipherSuite:      1,
		CreatedAt:        now,
		ExpiryTime:       now.Add(time.Hour),
		MaxDownloads:     maxDownloads,
		IsActive:         true,
		KEMCiphertext:    []byte{9, 9},
		KEMAlgorithm:     "ML-KEM-768",
		KEMKeyID:         "default",
		KEMGeneration:    gen,
	}
}

func TestPostgresServerKeys(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if err := s.RotateServerKey(ctx, serverKey("g1"), ""); err != nil {
		t.Fatalf("RotateServerKey failed: %v", err)
	}
	if err := s.RotateServerKey(ctx, serverKey("g2"), ""); !errors.Is(err, qerrors.ErrConflict) {
		t.Errorf("stale rotation = %v", err)
	}
	if err := s.RotateServerKey(ctx, serverKey("g2"), "g1"); err != nil {
		t.Fatalf("RotateServerKey failed: %v", err)
	}

	active, err := s.ActiveServerKey(ctx, "default")
	if err != nil || active.Generation != "g2" {
		t.Fatalf("ActiveServerKey = %+v, %v", active, err)
	}
	old, err := s.ServerKeyByGeneration(ctx, "g1")
	if err != nil {
		t.Fatalf("ServerKeyByGeneration failed: %v", err)
	}
	if old.Active || len(old.EncryptedPrivateKey.Salt) != 16 {
		t.Errorf("unexpected old generation: %+v", old)
	}
}

func TestPostgresShareLifecycle(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	if err := s.RotateServerKey(ctx, serverKey("g1"), ""); err != nil {
		t.Fatalf("RotateServerKey failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	one := 1
	if err := s.Create(ctx, publicShare("s1", "g1", now, &one)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(ctx, publicShare("s1", "g1", now, nil)); !errors.Is(err, qerrors.ErrConflict) {
		t.Errorf("duplicate Create = %v", err)
	}

	got, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.KEMGeneration != "g1" || got.TargetUserID != "" || *got.MaxDownloads != 1 {
		t.Errorf("unexpected record: %+v", got)
	}

	r, err := s.Consume(ctx, "s1", now)
	if err != nil || r.DownloadCount != 1 {
		t.Fatalf("Consume = %+v, %v", r, err)
	}
	if _, err := s.Consume(ctx, "s1", now); !errors.Is(err, qerrors.ErrExhausted) {
		t.Errorf("second Consume = %v", err)
	}

	if err := s.Create(ctx, publicShare("s2", "g1", now.Add(time.Second), nil)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Consume(ctx, "s2", now.Add(time.Hour+time.Second)); !errors.Is(err, qerrors.ErrExpired) {
		t.Errorf("Consume at expiry = %v", err)
	}
	if err := s.Deactivate(ctx, "s2", "bob"); !errors.Is(err, qerrors.ErrAccessDenied) {
		t.Errorf("Deactivate by non-owner = %v", err)
	}
	if err := s.Deactivate(ctx, "s2", "alice"); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if _, err := s.Consume(ctx, "s2", now); !errors.Is(err, qerrors.ErrDeactivated) {
		t.Errorf("Consume after deactivate = %v", err)
	}

	list, err := s.ListByOwner(ctx, "alice")
	if err != nil || len(list) != 2 || list[0].ShareID != "s2" {
		t.Errorf("ListByOwner = %v, %v", list, err)
	}
}

func TestPostgresConsumeRace(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	if err := s.RotateServerKey(ctx, serverKey("g1"), ""); err != nil {
		t.Fatalf("RotateServerKey failed: %v", err)
	}
	now := time.Now().UTC()
	one := 1
	if err := s.Create(ctx, publicShare("race", "g1", now, &one)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(ctx, "race", now); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("%d consumes succeeded, want 1", wins.Load())
	}
}

func TestPostgresUserKeysAndFiles(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	k := &model.UserKeys{
		UserID:              "alice",
		Algorithm:           "ML-KEM-768",
		PublicKey:           []byte{1},
		EncryptedPrivateKey: model.EncryptedPrivateKey{Salt: make([]byte, 16), Envelope: make([]byte, 30)},
		CreatedAt:           time.Now(),
	}
	if err := s.InsertUserKeys(ctx, k); err != nil {
		t.Fatalf("InsertUserKeys failed: %v", err)
	}
	if err := s.InsertUserKeys(ctx, k); !errors.Is(err, qerrors.ErrConflict) {
		t.Errorf("second insert = %v", err)
	}
	if n, err := s.ResetAllUserKeys(ctx); err != nil || n != 1 {
		t.Errorf("ResetAllUserKeys = %d, %v", n, err)
	}

	f := &model.StoredFile{ID: "f1", OwnerID: "alice", BlobRef: "b", Salt: make([]byte, 16), Size: 3, CreatedAt: time.Now()}
	if err := s.CreateFile(ctx, f); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if got, err := s.GetFile(ctx, "f1"); err != nil || got.BlobRef != "b" {
		t.Errorf("GetFile = %+v, %v", got, err)
	}
	if list, err := s.ListFiles(ctx, "alice"); err != nil || len(list) != 1 {
		t.Errorf("ListFiles = %d, %v", len(list), err)
	}
	if err := s.DeleteFile(ctx, "f1", "bob"); !errors.Is(err, qerrors.ErrAccessDenied) {
		t.Errorf("DeleteFile(other owner) = %v", err)
	}
	if err := s.DeleteFile(ctx, "f1", "alice"); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}
	if _, err := s.GetFile(ctx, "f1"); !errors.Is(err, qerrors.ErrNotFound) {
		t.Errorf("GetFile after delete = %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
