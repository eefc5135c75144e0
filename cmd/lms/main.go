// Command lms is a CLI client for the loan management API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/lms-client/internal/errs"
)

// ---- config ----

type config struct {
	API        string
	Store      string
	RedisURL   string
	DSN        string
	Passphrase string
	Timeout    time.Duration
	Debug      bool
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// bindFlags registers the global flags on fs with environment fallbacks.
func bindFlags(fs *flag.FlagSet) *config {
	c := &config{Passphrase: os.Getenv("LMS_TOKEN_PASSPHRASE")}
	fs.StringVar(&c.API, "api", envOr("LMS_API_URL", "http://localhost:5000"), "API server URL")
	fs.StringVar(&c.Store, "store", envOr("LMS_STORE", "file"), "token store: file|redis|postgres|memory")
	fs.StringVar(&c.RedisURL, "redis-url", envOr("LMS_REDIS_URL", "redis://localhost:6379/0"), "redis URL for -store redis")
	fs.StringVar(&c.DSN, "dsn", os.Getenv("LMS_DSN"), "postgres DSN for -store postgres")
	fs.DurationVar(&c.Timeout, "timeout", 30*time.Second, "overall command timeout")
	fs.BoolVar(&c.Debug, "debug", false, "verbose logging")
	return c
}

// apiBase turns a server URL into the API base path.
func apiBase(server string) string {
	s := strings.TrimRight(server, "/")
	if strings.HasSuffix(s, "/api") {
		return s
	}
	return s + "/api"
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "lms")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "lms")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `lms CLI
Usage:
  lms [-api URL] [-store file|redis|postgres|memory] [-redis-url URL] [-dsn DSN] [-debug] <cmd> [args]

Commands:
  version
  register        -u <username> -e <email> -p <password>   (prompts for OTP)
  login           -u <username> -p <password>              (prompts for OTP when required)
  admin-login     -u <username> -p <password>
  forgot-password -e <email>                               (prompts for OTP and new password)
  whoami
  status
  logout
  loans   list | create -amount <n> -purpose <text> | get -id <n>
  profile show | save -first .. -last .. -phone .. -address .. -dob YYYY-MM-DD -employment .. -income <n>
  admin   pending | reasons | approve -id <n> [-notes ..] | reject -id <n> -reason <CODE> [-notes ..]
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	cfg := bindFlags(flag.CommandLine)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	if flag.Arg(0) == "version" {
		fmt.Printf("lms %s (%s)\n", version, buildDate)
		return
	}

	log, err := newLogger(cfg.Debug)
	if err != nil {
		fail(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	a, err := newApp(ctx, *cfg, log)
	if err != nil {
		fail(err)
	}
	defer a.Close()

	if err := a.run(ctx, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			usage()
		}
		fail(err)
	}
}

// ---- helpers ----

func fail(err error) {
	var re *redirectError
	if errors.As(err, &re) {
		fmt.Fprintf(os.Stderr, "redirect: %s\n", re.To)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, errs.Message(err))
	os.Exit(1)
}
