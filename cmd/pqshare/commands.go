package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	qerrors "github.com/pzverkov/pqshare/internal/errors"
	"github.com/pzverkov/pqshare/pkg/config"
	"github.com/pzverkov/pqshare/pkg/metrics"
	"github.com/pzverkov/pqshare/pkg/share"
	"github.com/pzverkov/pqshare/pkg/store/postgres"
	"golang.org/x/sync/errgroup"
)

func serveCommand(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	interval := fs.Duration("check-interval", time.Hour, "How often to check whether the server key is due for rotation")
	tracing := fs.String("tracing", "none", "Tracing mode: none, simple, otel")
	noMigrate := fs.Bool("no-migrate", false, "Skip database migrations at startup")
	fs.Usage = func() {
		fmt.Println(`USAGE: pqshare serve [options]

Ensure the server key exists, rotate it when due, and serve /metrics,
/health, /healthz and /readyz on METRICS_ADDR until SIGINT or SIGTERM.

OPTIONS:`)
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, *tracing, !*noMigrate)
	if err != nil {
		return err
	}
	defer a.Close()

	pk, err := a.custody.EnsureServerKey(ctx)
	if err != nil {
		return fmt.Errorf("server key: %w", err)
	}
	a.logger.Info("server key ready", metrics.Fields{"generation": pk.Generation, "kem": pk.Algorithm})

	server := metrics.NewServer(metrics.ServerConfig{
		Collector:        a.collector,
		Version:          getVersion(),
		Namespace:        "pqshare",
		EnablePrometheus: true,
		EnableHealth:     true,
	})
	a.healthChecks(server)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx, a.cfg.MetricsAddr) })
	g.Go(func() error { return a.custody.RunRotation(gctx, *interval) })
	a.logger.Info("serving", metrics.Fields{"metrics_addr": a.cfg.MetricsAddr})

	// Both goroutines have returned before the deferred Close runs.
	err = g.Wait()
	if err == nil || errors.Is(err, context.Canceled) {
		a.logger.Info("shutting down")
		return nil
	}
	return err
}

func migrateCommand(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println(`USAGE: pqshare migrate

Apply pending migrations to DATABASE_URL.`)
	}
	_ = fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.UsesDatabase() {
		return errors.New("DATABASE_URL is not set")
	}
	return postgres.Migrate(cfg.DatabaseURL, cfg.Logger())
}

func rotateKeyCommand(args []string) error {
	fs := flag.NewFlagSet("rotate-key", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Println(`USAGE: pqshare rotate-key

Replace the active server key with a new generation. Shares wrapped under
earlier generations stay recoverable.`)
	}
	_ = fs.Parse(args)

	ctx := context.Background()
	a, err := newApp(ctx, "none", false)
	if err != nil {
		return err
	}
	defer a.Close()

	prev, err := a.custody.CurrentServerKey(ctx)
	if err != nil && !qerrors.Is(err, qerrors.ErrKeyUnavailable) {
		return err
	}
	pk, err := a.custody.RotateServerKey(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Server key rotated: generation %s (%s)\n", pk.Generation, pk.Algorithm)

	// Shares wrapped under the retired generation must still resolve it.
	if prev != nil {
		old, err := a.custody.ServerPublicKey(ctx, prev.Generation)
		if err != nil {
			return fmt.Errorf("retired generation %s: %w", prev.Generation, err)
		}
		fmt.Printf("  Retired generation %s (%s) is still available\n", old.Generation, old.Algorithm)
	}
	return nil
}

func resetUserKeysCommand(args []string) error {
	fs := flag.NewFlagSet("reset-user-keys", flag.ExitOnError)
	confirm := fs.Bool("yes", false, "Confirm deletion")
	fs.Usage = func() {
		fmt.Println(`USAGE: pqshare reset-user-keys --yes

Delete every user's KEM keypair. Keys regenerate on next use; private
shares wrapped to the old keys can no longer be redeemed.

OPTIONS:`)
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)
	if !*confirm {
		return errors.New("refusing to delete user keys without --yes")
	}

	ctx := context.Background()
	a, err := newApp(ctx, "none", false)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.custody.ResetUserKeys(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Deleted keys for %d users\n", n)
	return nil
}

func shareCommand(args []string) error {
	fs := flag.NewFlagSet("share", flag.ExitOnError)
	file := fs.String("file", "", "File to share (required)")
	owner := fs.String("owner", "cli", "Owner id recorded on the share")
	expiry := fs.Int("expiry-hours", 0, "Lifetime in hours (0 = PQ_SHARE_DEFAULT_EXPIRY_HOURS)")
	maxDownloads := fs.Int("max-downloads", 0, "Download limit (0 = unlimited)")
	fs.Usage = func() {
		fmt.Println(`USAGE: pqshare share --file PATH [options]

Encrypt a file into a public share and print its URL. The key is in the
URL fragment; anyone holding the URL can redeem it.

OPTIONS:`)
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)
	if *file == "" {
		fs.Usage()
		return errors.New("--file is required")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, "none", false)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := share.Options{ExpiryHours: *expiry}
	if *maxDownloads > 0 {
		opts.MaxDownloads = maxDownloads
	}
	c, err := a.shares.CreatePublic(ctx, share.PublicRequest{
		OwnerID:  *owner,
		Filename: filepath.Base(*file),
		Payload:  data,
		Options:  opts,
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ Share created (expires %s)\n", c.Record.ExpiryTime.Format(time.RFC3339))
	fmt.Println(c.URL)
	if !a.cfg.UsesDatabase() {
		fmt.Fprintln(os.Stderr, "⚠ In-memory store: this share ends with the process. Set DATABASE_URL to persist it.")
	}
	return nil
}

func redeemCommand(args []string) error {
	fs := flag.NewFlagSet("redeem", flag.ExitOnError)
	rawURL := fs.String("url", "", "Share URL including the #key fragment (required)")
	out := fs.String("out", "", "Output path (default: original filename)")
	fs.Usage = func() {
		fmt.Println(`USAGE: pqshare redeem --url URL [--out PATH]

Redeem a public share and write the payload to disk. Each redemption
counts against the share's download limit.

OPTIONS:`)
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)
	if *rawURL == "" {
		fs.Usage()
		return errors.New("--url is required")
	}

	ctx := context.Background()
	a, err := newApp(ctx, "none", false)
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.shares.Redeem(ctx, *rawURL, share.Credentials{})
	if err != nil {
		return err
	}

	path := *out
	if path == "" {
		path = filepath.Base(d.Filename)
		if path == "." || path == "/" || path == "" {
			path = "download.bin"
		}
	}
	if err := os.WriteFile(path, d.Payload, 0o600); err != nil {
		return err
	}
	fmt.Printf("✓ Wrote %d bytes to %s\n", len(d.Payload), path)
	return nil
}
