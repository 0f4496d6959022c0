// Package pqshare is a post-quantum key-wrapping engine for file sharing.
//
// Shared files are encrypted under fresh 32-byte keys. Those keys are then
// wrapped to a recipient's KEM public key: ML-KEM (NIST FIPS 203) or an
// X25519 + ML-KEM-1024 hybrid.
//
// # Quick Start
//
//	scheme, _ := kem.Load(kem.Options{Provider: "kyber", Algorithm: "Kyber768"})
//	st := memory.New()
//	keys, _ := custody.NewService(custody.Config{MasterSecret: master}, scheme, st, st)
//	shares := share.NewManager(keys, envelope.New(scheme, 0), st, memory.NewBlobs())
//
//	c, _ := shares.CreatePublic(ctx, share.PublicRequest{OwnerID: "alice", Payload: data})
//	d, _ := shares.Redeem(ctx, c.URL, share.Credentials{})
//
// # Package Structure
//
//   - pkg/crypto: AEAD envelopes, HKDF and PBKDF2 derivation, self-tests
//   - pkg/kem: ML-KEM, hybrid and mock schemes behind one interface
//   - pkg/envelope: Wrapping symmetric keys to KEM public keys
//   - pkg/custody: User and server keypairs, sealed at rest, with rotation
//   - pkg/share: Public and private share lifecycle
//   - pkg/vault: Per-owner at-rest file encryption
//   - pkg/store: Storage interfaces with memory, Postgres and filesystem backends
//   - pkg/metrics: Logging, metrics, tracing and health endpoints
//   - pkg/config: Environment configuration
//   - internal/constants: Sizes, domain separators and defaults
//   - internal/errors: Sentinel errors and wrappers
//
// # Security Properties
//
//   - Post-quantum key wrapping: ML-KEM-512/768/1024 or X25519-ML-KEM-1024
//   - KEM secrets pass through HKDF-SHA256 before use as AEAD keys
//   - Authenticated encryption: AES-256-GCM or ChaCha20-Poly1305
//   - Private keys at rest: PBKDF2-HMAC-SHA256 (>= 100000 rounds) + AES-256-GCM
//   - Server key rotation keeps every generation, so old shares stay recoverable
//   - Download limits are enforced by a single atomic consume
//
// # Testing
//
//	go test ./...                                       # Unit tests
//	TEST_INTEGRATION=1 go test ./pkg/store/postgres     # Postgres via testcontainers
//	go test -fuzz=FuzzDecodeWrappedKey ./test/fuzz/     # Fuzz tests
//	go test -bench=. ./test/benchmark                   # Benchmarks
//
// # References
//
//   - NIST FIPS 203: Module-Lattice-Based Key-Encapsulation Mechanism Standard
//   - RFC 5869: HMAC-based Extract-and-Expand Key Derivation Function (HKDF)
//   - RFC 8018: PKCS #5 v2.1 (PBKDF2)
package pqshare
