// Package config loads pqshare settings from the environment, optionally
// preloaded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pzverkov/pqshare/internal/constants"
	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/crypto"
	"github.com/pzverkov/pqshare/pkg/metrics"
)

// MinMasterKeyLength is the shortest accepted ENCRYPTION_MASTER_KEY.
const MinMasterKeyLength = 16

// Config holds every runtime setting.
type Config struct {
	// --- KEM ---

	KEMProvider  string // kyber, mlkem, hybrid, mock or none
	KEMAlgorithm string
	KEMFallback  bool

	// --- Key custody ---

	MasterKey        string
	RotationDays     int
	ServerKeyID      string
	PBKDF2Iterations int
	CryptoWorkers    int
	PubKeyCacheSize  int
	PubKeyCacheTTL   time.Duration

	// --- Shares ---

	EnableShareLinks   bool
	EnableUserKeys     bool
	VerifyServerWrap   bool
	CipherSuite        constants.CipherSuite
	ShareBasePath      string
	ShareDefaultExpiry time.Duration
	RedeemRate         float64
	RedeemBurst        int

	// --- Storage ---

	// DatabaseURL selects Postgres; empty uses the in-memory store.
	DatabaseURL  string
	UploadFolder string

	// --- Observability ---

	LogLevel    metrics.Level
	LogFormat   metrics.Format
	MetricsAddr string
}

// Default returns the built-in settings. MasterKey is left empty and must
// be supplied.
func Default() *Config {
	return &Config{
		KEMProvider:        "kyber",
		KEMAlgorithm:       "Kyber768",
		KEMFallback:        true,
		RotationDays:       constants.DefaultRotationDays,
		ServerKeyID:        constants.DefaultServerKeyID,
		PBKDF2Iterations:   constants.DefaultPBKDF2Iterations,
		CryptoWorkers:      runtime.NumCPU(),
		PubKeyCacheSize:    1024,
		PubKeyCacheTTL:     5 * time.Minute,
		EnableShareLinks:   true,
		EnableUserKeys:     true,
		CipherSuite:        constants.CipherSuiteAES256GCM,
		ShareBasePath:      constants.DefaultSharePath,
		ShareDefaultExpiry: constants.DefaultShareExpiryHours * time.Hour,
		RedeemRate:         1,
		RedeemBurst:        10,
		UploadFolder:       "./uploads",
		LogLevel:           metrics.LevelInfo,
		LogFormat:          metrics.FormatText,
		MetricsAddr:        ":9090",
	}
}

// Load reads .env files (".env" when none are named, ignored if absent),
// then the environment, and validates the result. Variables already set in
// the environment win over .env entries.
func Load(envFiles ...string) (*Config, error) {
	if err := loadDotEnv(envFiles); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := cfg.fromEnv(); err != nil {
		return nil, fmt.Errorf("%w: %w", qerrors.ErrConfiguration, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: .env: %w", qerrors.ErrConfiguration, err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("%w: %w", qerrors.ErrConfiguration, err)
	}
	return nil
}

func (c *Config) fromEnv() error {
	var err error

	c.KEMProvider = strings.ToLower(getEnvDefault("PQ_KEM_PROVIDER", c.KEMProvider))
	c.KEMAlgorithm = getEnvDefault("PQ_KEM_ALGORITHM", c.KEMAlgorithm)
	if c.KEMFallback, err = getEnvBool("PQ_KEM_FALLBACK", c.KEMFallback); err != nil {
		return err
	}

	c.MasterKey = os.Getenv("ENCRYPTION_MASTER_KEY")
	if c.RotationDays, err = getEnvInt("PQ_STATIC_KEY_ROTATION_DAYS", c.RotationDays); err != nil {
		return err
	}
	c.ServerKeyID = getEnvDefault("PQ_SERVER_KEY_ID", c.ServerKeyID)
	if c.PBKDF2Iterations, err = getEnvInt("PQ_PBKDF2_ITERATIONS", c.PBKDF2Iterations); err != nil {
		return err
	}
	if c.CryptoWorkers, err = getEnvInt("PQ_CRYPTO_WORKERS", c.CryptoWorkers); err != nil {
		return err
	}
	if c.PubKeyCacheSize, err = getEnvInt("PQ_PUBKEY_CACHE_SIZE", c.PubKeyCacheSize); err != nil {
		return err
	}
	if c.PubKeyCacheTTL, err = getEnvDuration("PQ_PUBKEY_CACHE_TTL", c.PubKeyCacheTTL); err != nil {
		return err
	}

	if c.EnableShareLinks, err = getEnvBool("PQ_ENABLE_SHARE_LINKS", c.EnableShareLinks); err != nil {
		return err
	}
	if c.EnableUserKeys, err = getEnvBool("PQ_ENABLE_USER_KEYS", c.EnableUserKeys); err != nil {
		return err
	}
	if c.VerifyServerWrap, err = getEnvBool("PQ_VERIFY_SERVER_WRAP", c.VerifyServerWrap); err != nil {
		return err
	}
	if v := os.Getenv("PQ_CIPHER_SUITE"); v != "" {
		if c.CipherSuite = constants.ParseCipherSuite(v); c.CipherSuite == 0 {
			return fmt.Errorf("PQ_CIPHER_SUITE: unknown suite %q", v)
		}
	}
	c.ShareBasePath = getEnvDefault("PQ_SHARE_BASE_PATH", c.ShareBasePath)
	hours, err := getEnvInt("PQ_SHARE_DEFAULT_EXPIRY_HOURS", int(c.ShareDefaultExpiry/time.Hour))
	if err != nil {
		return err
	}
	c.ShareDefaultExpiry = time.Duration(hours) * time.Hour
	if c.RedeemRate, err = getEnvFloat("PQ_REDEEM_RATE", c.RedeemRate); err != nil {
		return err
	}
	if c.RedeemBurst, err = getEnvInt("PQ_REDEEM_BURST", c.RedeemBurst); err != nil {
		return err
	}

	c.DatabaseURL = os.Getenv("DATABASE_URL")
	c.UploadFolder = getEnvDefault("UPLOAD_FOLDER", c.UploadFolder)

	c.LogLevel = metrics.ParseLevel(getEnvDefault("LOG_LEVEL", c.LogLevel.String()))
	c.LogFormat = metrics.ParseFormat(os.Getenv("LOG_FORMAT"))
	c.MetricsAddr = getEnvDefault("METRICS_ADDR", c.MetricsAddr)
	return nil
}

// applyDefaults fills zero values that have a sensible default.
func (c *Config) applyDefaults() {
	d := Default()
	if c.KEMProvider == "" {
		c.KEMProvider = d.KEMProvider
	}
	if c.ServerKeyID == "" {
		c.ServerKeyID = d.ServerKeyID
	}
	if c.CryptoWorkers <= 0 {
		c.CryptoWorkers = d.CryptoWorkers
	}
	if c.CipherSuite == 0 {
		c.CipherSuite = d.CipherSuite
	}
	if c.ShareBasePath == "" {
		c.ShareBasePath = d.ShareBasePath
	}
	if c.ShareDefaultExpiry <= 0 {
		c.ShareDefaultExpiry = d.ShareDefaultExpiry
	}
	if c.RedeemBurst <= 0 {
		c.RedeemBurst = d.RedeemBurst
	}
	if c.UploadFolder == "" {
		c.UploadFolder = d.UploadFolder
	}
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	var problems []string
	if len(c.MasterKey) < MinMasterKeyLength {
		problems = append(problems, fmt.Sprintf("ENCRYPTION_MASTER_KEY must be at least %d characters", MinMasterKeyLength))
	}
	switch c.KEMProvider {
	case "kyber", "mlkem", "hybrid", "mock", "none":
	default:
		problems = append(problems, fmt.Sprintf("PQ_KEM_PROVIDER %q is not one of kyber, mlkem, hybrid, mock, none", c.KEMProvider))
	}
	if c.RotationDays < 0 {
		problems = append(problems, "PQ_STATIC_KEY_ROTATION_DAYS must not be negative")
	}
	if c.PBKDF2Iterations < constants.MinPBKDF2Iterations {
		problems = append(problems, fmt.Sprintf("PQ_PBKDF2_ITERATIONS must be at least %d", constants.MinPBKDF2Iterations))
	}
	if !c.CipherSuite.IsSupported() {
		problems = append(problems, "PQ_CIPHER_SUITE is not supported")
	} else if crypto.FIPSMode() && !c.CipherSuite.IsFIPSApproved() {
		problems = append(problems, "PQ_CIPHER_SUITE is not allowed in a FIPS build")
	}
	if c.RedeemRate < 0 {
		problems = append(problems, "PQ_REDEEM_RATE must not be negative")
	}
	if c.PubKeyCacheSize < 0 {
		problems = append(problems, "PQ_PUBKEY_CACHE_SIZE must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", qerrors.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// UsesDatabase reports whether a Postgres store is configured.
func (c *Config) UsesDatabase() bool {
	return c.DatabaseURL != ""
}

// Logger builds the process logger from the log settings.
func (c *Config) Logger() *metrics.Logger {
	return metrics.NewLogger(
		metrics.WithLevel(c.LogLevel),
		metrics.WithFormat(c.LogFormat),
		metrics.WithFields(metrics.Fields{"service": constants.ProductName}),
	)
}

// --- helpers ---

func getEnvDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, val)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, val)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("%s: invalid boolean %q", key, val)
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q (use 30s, 5m, 1h)", key, val)
	}
	return d, nil
}
