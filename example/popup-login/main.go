// Command popup-login signs in with Xumm from the terminal: it opens the
// sign-in page in the system browser, receives the redirect on a localhost
// callback and prints the signed-in account.
//
// Run with "logout" as the only argument to forget the remembered session.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/mnehpets/xummpkce/authflow"
	"github.com/mnehpets/xummpkce/event"
	"github.com/mnehpets/xummpkce/loopback"
	"github.com/mnehpets/xummpkce/storage"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type config struct {
	ClientID    string `env:"XUMM_CLIENT_ID,required"`
	RedirectURL string `env:"XUMM_REDIRECT_URL" envDefault:"http://127.0.0.1:8765/callback"`
	// StorePath is the session file. Defaults to a file in the user config
	// directory.
	StorePath string `env:"XUMM_STORE_PATH"`
	// StoreKey, base64-encoded, seals the stored session.
	StoreKey string `env:"XUMM_STORE_KEY"`
	// RedisAddr stores the session in Redis instead of a file.
	RedisAddr string `env:"XUMM_REDIS_ADDR"`
	Implicit  bool   `env:"XUMM_IMPLICIT"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("config: %v", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("LOG_LEVEL: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st, err := openStorage(cfg)
	if err != nil {
		log.Fatal(err)
	}

	pg, err := loopback.New(cfg.RedirectURL, loopback.WithStorage(st), loopback.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}
	client := authflow.New(cfg.ClientID, pg, authflow.Options{
		Implicit: cfg.Implicit,
		Logger:   logger,
	})

	if len(os.Args) == 2 && os.Args[1] == "logout" {
		done := make(chan struct{}, 1)
		client.On(event.LoggedOut, func(error) {
			select {
			case done <- struct{}{}:
			default:
			}
		})
		client.Logout()
		<-done
		fmt.Println("Signed out.")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, pg, client); err != nil {
		log.Fatal(err)
	}
}

func openStorage(cfg config) (storage.Storage, error) {
	var st storage.Storage
	if cfg.RedisAddr != "" {
		st = storage.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), "xummpkce:")
	} else {
		path := cfg.StorePath
		if path == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("XUMM_STORE_PATH unset and no config dir: %w", err)
			}
			if err := os.MkdirAll(filepath.Join(dir, "xummpkce"), 0o700); err != nil {
				return nil, err
			}
			path = filepath.Join(dir, "xummpkce", "session.cbor")
		}
		st = storage.NewFile(path)
	}

	if cfg.StoreKey == "" {
		return st, nil
	}
	key, err := base64.StdEncoding.DecodeString(cfg.StoreKey)
	if err != nil {
		return nil, fmt.Errorf("XUMM_STORE_KEY: %w", err)
	}
	return storage.NewSealed(st, "k1", map[string][]byte{"k1": key})
}

func run(ctx context.Context, pg *loopback.Page, client *authflow.Client) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return pg.ListenAndServe(ctx)
	})

	g.Go(func() error {
		// The server is only needed until the attempt settles.
		defer cancel()
		a, err := client.Authorize(ctx)
		if err != nil {
			return err
		}
		f, err := a.Wait(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("sign-in failed: %w", err)
		}

		fmt.Printf("Signed in as %s (%s)\n", f.Me.Account, f.Me.Sub)
		if claims, err := f.SDK.Claims(); err == nil {
			fmt.Printf("Token for app %q, expires %v\n", claims.AppName, claims.Expiry.Time())
		}
		return nil
	})

	return g.Wait()
}
