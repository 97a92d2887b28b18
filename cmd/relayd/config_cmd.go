package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mattjoyce/relayd/internal/auth"
	"github.com/mattjoyce/relayd/internal/config"
	"github.com/mattjoyce/relayd/internal/doctor"
)

func runHash(args []string, w io.Writer) int {
	if len(args) != 1 || args[0] == "--help" || args[0] == "-h" {
		fmt.Fprintln(os.Stderr, "Usage: relayd hash <password>")
		return 1
	}
	fmt.Fprintln(w, auth.HashPassword(args[0]))
	return 0
}

func runConfigNoun(args []string) int {
	verb, rest := splitNoun(args)
	switch verb {
	case "check":
		return runConfigCheck(rest, os.Stdout)
	case "lock":
		return runConfigLock(rest, os.Stdout)
	case "", "help":
		fmt.Fprintln(os.Stdout, "Usage: relayd config <check|lock> [--config PATH]")
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", verb)
		return 1
	}
}

func runConfigCheck(args []string, w io.Writer) int {
	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Print the diagnostics report as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}
	creds, err := loadCredentials(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}

	source := cfg.Path
	if source == "" {
		source = "(built-in defaults)"
	}
	fmt.Fprintf(w, "Configuration OK: %s\n", source)
	fmt.Fprintf(w, "  req:      %s\n", cfg.ReqEndpoint())
	fmt.Fprintf(w, "  pub:      %s\n", cfg.PubEndpoint())
	fmt.Fprintf(w, "  sessions: %s, ttl %s\n", cfg.Session.Backend, cfg.SessionTTL())
	fmt.Fprintf(w, "  users:    %d\n", creds.Len())
	fmt.Fprintf(w, "  state:    %s\n", cfg.State.Path)
	if cfg.API.Enabled {
		fmt.Fprintf(w, "  api:      %s\n", cfg.API.Listen)
	}

	report := doctor.New(cfg).Validate()
	if *jsonOut {
		out, err := doctor.FormatJSON(report)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
			return 1
		}
		fmt.Fprintln(w, out)
	} else {
		fmt.Fprint(w, doctor.FormatHuman(report))
	}
	if !report.Valid {
		return 1
	}
	return 0
}

func runConfigLock(args []string, w io.Writer) int {
	fs := flag.NewFlagSet("config lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	dryRun := fs.Bool("dry-run", false, "Show hashes without writing .checksums")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	path := *configPath
	if path == "" {
		discovered, err := config.Discover()
		if err != nil || discovered == "" {
			fmt.Fprintln(os.Stderr, "config lock needs a config file (--config)")
			return 1
		}
		path = discovered
	}

	// Parse without verification: lock is how a mismatch gets fixed.
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
		return 1
	}
	cfg, err := config.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}
	if cfg.Credentials.File == "" {
		fmt.Fprintln(os.Stderr, "credentials.file is not set; nothing to lock")
		return 1
	}
	file := config.ResolvePath(path, cfg.Credentials.File)

	report, err := config.Lock([]string{file}, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return 1
	}
	for name, hash := range report.Files {
		fmt.Fprintf(w, "%s  %s\n", hash, name)
	}
	if report.Written {
		fmt.Fprintf(w, "wrote %s\n", report.ChecksumPath)
	} else {
		fmt.Fprintln(w, "dry run: nothing written")
	}
	return 0
}
