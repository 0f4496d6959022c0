package main

import (
	"fmt"
	"os"

	pkgversion "github.com/pzverkov/pqshare/pkg/version"
)

// Build-time variables (set via -ldflags)
var (
	version   = ""        // Set via -ldflags "-X main.version=x.y.z"
	buildTime = "unknown" // Set via -ldflags "-X main.buildTime=..."
	gitCommit = "unknown" // Set via -ldflags "-X main.gitCommit=..."
)

func getVersion() string {
	if version != "" {
		return version
	}
	return pkgversion.String()
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "serve":
		err = serveCommand(args)
	case "migrate":
		err = migrateCommand(args)
	case "rotate-key":
		err = rotateKeyCommand(args)
	case "reset-user-keys":
		err = resetUserKeysCommand(args)
	case "share":
		err = shareCommand(args)
	case "redeem":
		err = redeemCommand(args)
	case "bench":
		err = benchCommand(args)
	case "version":
		fmt.Println(pkgversion.Full())
		if version != "" {
			fmt.Printf("Release: %s\n", version)
		}
		if buildTime != "unknown" {
			fmt.Printf("Built: %s\n", buildTime)
		}
		if gitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", gitCommit)
		}
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`pqshare - Post-quantum file sharing key service

USAGE:
    pqshare <command> [options]

COMMANDS:
    serve             Run key rotation and the observability server
    migrate           Apply database migrations
    rotate-key        Force a server key rotation
    reset-user-keys   Delete every user keypair (regenerated on next use)
    share             Encrypt a local file into a public share
    redeem            Redeem a public share URL to a local file
    bench             Measure KEM, wrap/unwrap and PBKDF2 performance
    version           Print version information
    help              Show this help message

Run 'pqshare <command> --help' for more information on a command.

CONFIGURATION:
    Settings come from the environment, optionally preloaded from .env.
    ENCRYPTION_MASTER_KEY is required. DATABASE_URL selects Postgres;
    without it state lives in memory and ends with the process.

EXAMPLES:
    # Apply migrations and serve
    pqshare migrate && pqshare serve

    # Share a file for 48 hours, at most 3 downloads
    pqshare share --file report.pdf --owner alice --expiry-hours 48 --max-downloads 3

    # Redeem it
    pqshare redeem --url '/share/Xk2...#q9F...' --out report.pdf

    # Compare KEM variants
    pqshare bench --iterations 200`)
}
