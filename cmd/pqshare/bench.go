package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/pzverkov/pqshare/internal/constants"
	"github.com/pzverkov/pqshare/pkg/crypto"
	"github.com/pzverkov/pqshare/pkg/envelope"
	"github.com/pzverkov/pqshare/pkg/kem"
)

func benchCommand(args []string) error {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	iterations := fs.Int("iterations", 100, "Operations per measurement")
	algs := fs.String("kem", "ML-KEM-512,ML-KEM-768,ML-KEM-1024,X25519-ML-KEM-1024", "Comma-separated KEM algorithms")
	cipher := fs.String("cipher", "aes-256-gcm", "Cipher suite: aes-256-gcm or chacha20-poly1305")
	pbkdf2Rounds := fs.Int("pbkdf2", 10, "PBKDF2 derivations to time (0 = skip)")
	fs.Usage = func() {
		fmt.Println(`USAGE: pqshare bench [options]

Measure key generation, wrap and unwrap per KEM algorithm, and the cost of
one PBKDF2 key derivation at the configured iteration floor.

OPTIONS:`)
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	suite := constants.ParseCipherSuite(*cipher)
	if !suite.IsSupported() {
		return fmt.Errorf("unknown cipher suite %q", *cipher)
	}
	if *iterations < 1 {
		return fmt.Errorf("--iterations must be positive")
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║      pqshare Benchmark                                   ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Cipher: %s, %d iterations\n\n", suite, *iterations)

	fmt.Printf("%-22s %12s %12s %12s %8s\n", "KEM", "keygen", "wrap", "unwrap", "ct")
	fmt.Println(strings.Repeat("─", 70))
	for _, name := range strings.Split(*algs, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if err := benchScheme(name, suite, *iterations); err != nil {
			fmt.Printf("%-22s error: %v\n", name, err)
		}
	}

	if *pbkdf2Rounds > 0 {
		fmt.Println()
		benchPBKDF2(*pbkdf2Rounds)
	}
	return nil
}

func benchScheme(name string, suite constants.CipherSuite, n int) error {
	scheme, err := kem.Lookup(name)
	if err != nil {
		return err
	}

	var kp *kem.KeyPair
	start := time.Now()
	for i := 0; i < n; i++ {
		if kp, err = scheme.GenerateKeyPair(); err != nil {
			return err
		}
	}
	keygen := time.Since(start) / time.Duration(n)
	defer kp.Zeroize()

	key, err := crypto.NewSymmetricKey()
	if err != nil {
		return err
	}
	engine := envelope.New(scheme, suite)

	var w *envelope.WrappedKey
	start = time.Now()
	for i := 0; i < n; i++ {
		if w, err = engine.Wrap(key, kp.PublicKey); err != nil {
			return err
		}
	}
	wrap := time.Since(start) / time.Duration(n)

	start = time.Now()
	for i := 0; i < n; i++ {
		if _, ok := engine.Unwrap(w, kp.PrivateKey); !ok {
			return fmt.Errorf("unwrap failed")
		}
	}
	unwrap := time.Since(start) / time.Duration(n)

	fmt.Printf("%-22s %12v %12v %12v %7dB\n", name, keygen, wrap, unwrap, len(w.Encode()))
	return nil
}

func benchPBKDF2(n int) {
	salt, err := crypto.NewSalt()
	if err != nil {
		fmt.Printf("PBKDF2: error: %v\n", err)
		return
	}
	start := time.Now()
	for i := 0; i < n; i++ {
		k, err := crypto.DerivePasswordKey([]byte("benchmark-password"), salt, constants.MinPBKDF2Iterations)
		if err != nil {
			fmt.Printf("PBKDF2: error: %v\n", err)
			return
		}
		crypto.Zeroize(k)
	}
	avg := time.Since(start) / time.Duration(n)
	fmt.Printf("PBKDF2-HMAC-SHA256 (%d rounds): %v per derivation\n", constants.MinPBKDF2Iterations, avg)
	if avg < 50*time.Millisecond {
		fmt.Println("⚠ Derivation is fast on this host; consider raising PQ_PBKDF2_ITERATIONS")
	}
}
