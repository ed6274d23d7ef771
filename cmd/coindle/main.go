package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MJE43/coindle/internal/client"
	"github.com/MJE43/coindle/internal/config"
	"github.com/MJE43/coindle/internal/engine"
	"github.com/MJE43/coindle/internal/record"
	"github.com/MJE43/coindle/internal/secrets"
	"github.com/MJE43/coindle/internal/session"
)

func main() {
	var (
		revealDelay = flag.Duration("delay", 1200*time.Millisecond, "pause between a guess and its reveal")
		saveSecret  = flag.Bool("save-secret", false, "store COINDLE_SECRET in the OS keyring and exit")
		verbose     = flag.Bool("v", false, "log background activity to stderr")
	)
	flag.Parse()

	if err := config.LoadEnvFile(); err != nil {
		log.Fatalf("env file: %v", err)
	}
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		log.Fatalf("data dir: %v", err)
	}

	keys := secrets.NewKeyringStore(secrets.DefaultService, cfg.SecretFallbackPath())
	if *saveSecret {
		if err := keys.SetTokenSecret(cfg.Secret); err != nil {
			log.Fatalf("save secret: %v", err)
		}
		fmt.Println("Secret saved.")
		return
	}

	logger := log.New(os.Stderr, "[coindle] ", log.LstdFlags)
	if !*verbose {
		logger.SetOutput(io.Discard)
	}

	secret, err := resolveSecret(cfg.Secret, keys)
	if err != nil {
		log.Fatalf("secret: %v", err)
	}
	if secret == "" {
		fmt.Fprintln(os.Stderr, "warning: no score secret configured; set COINDLE_SECRET or run with -save-secret")
	}

	kv, err := record.OpenSQLiteKV(cfg.RecordPath())
	if err != nil {
		log.Fatalf("open record store: %v", err)
	}
	defer kv.Close()

	flipper, err := engine.NewRandomFlipper()
	if err != nil {
		log.Fatalf("flipper: %v", err)
	}

	sess, err := session.New(session.Config{
		Records: record.NewStore(kv),
		Reporter: client.New(client.Config{
			BaseURL: cfg.APIURL,
			Timeout: cfg.Timeout,
		}),
		Flipper: flipper,
		Secret:  secret,
		Timeout: cfg.Timeout,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("session: %v", err)
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newGame(sess, os.Stdin, os.Stdout, *revealDelay).run(ctx); err != nil {
		if errors.Is(err, session.ErrStateUnknown) {
			fmt.Fprintln(os.Stderr, "Could not read or save today's result; try again later.")
		}
		logger.Printf("game_ended error=%q", err)
		sess.Close()
		kv.Close()
		os.Exit(1)
	}
}

// tokenSecrets is the part of secrets.KeyringStore used to find the score secret.
type tokenSecrets interface {
	TokenSecret() (string, error)
}

// resolveSecret prefers the environment, then the keyring. A missing secret is not an error.
func resolveSecret(fromEnv string, keys tokenSecrets) (string, error) {
	if fromEnv != "" {
		return fromEnv, nil
	}
	secret, err := keys.TokenSecret()
	if errors.Is(err, secrets.ErrNotFound) {
		return "", nil
	}
	return secret, err
}
