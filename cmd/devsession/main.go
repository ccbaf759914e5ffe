package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	postgres "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/postgres"
	pgstore "github.com/Overland-East-Bay/itinerary-planner-api/internal/adapters/postgres/store"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/credentials"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/integrity"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/app/users"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/domain"
	platformclock "github.com/Overland-East-Bay/itinerary-planner-api/internal/platform/clock"
	"github.com/Overland-East-Bay/itinerary-planner-api/internal/platform/config"
)

// Dev-only session minter.
//
// Finds or creates the user for -email, links an "email" account for it and opens a
// session, then prints the bearer token. Needs the postgres backend: a memory store
// would vanish with this process.
//
//	go run ./cmd/devsession -email alice@example.com

func main() {
	email := flag.String("email", "", "email of the user to sign in (required)")
	name := flag.String("name", "", "display name when the user is created")
	ttl := flag.Duration("ttl", 12*time.Hour, "session lifetime")
	flag.Parse()

	if err := run(*email, *name, *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "devsession: %v\n", err)
		os.Exit(1)
	}
}

func run(email, name string, ttl time.Duration) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("missing -email")
	}
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.IsProduction() {
		return errors.New("refusing to mint sessions with APP_ENV=production")
	}
	if cfg.StorageBackend != config.StoragePostgres {
		return errors.New("STORAGE_BACKEND=postgres is required")
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()
	if _, err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}

	st := pgstore.NewStore(pool)
	clk := platformclock.NewSystemClock()
	usersSvc := users.NewService(st)
	credSvc := credentials.NewService(st, clk, credentials.Options{SessionMaxAge: cfg.SessionMaxAge})

	u, err := usersSvc.GetByEmail(ctx, email)
	if errors.Is(err, integrity.ErrNotFound) {
		in := users.CreateUserInput{Email: &email}
		if n := strings.TrimSpace(name); n != "" {
			in.Name = &n
		}
		u, err = usersSvc.Create(ctx, in)
	}
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}

	if _, err := credSvc.LinkAccount(ctx, credentials.LinkAccountInput{
		UserID:            u.ID,
		Type:              domain.AccountTypeEmail,
		Provider:          "email",
		ProviderAccountID: strings.ToLower(email),
	}); err != nil {
		return fmt.Errorf("link account: %w", err)
	}

	sess, err := credSvc.CreateSession(ctx, u.ID, clk.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"userId":        u.ID,
		"sessionToken":  sess.SessionToken,
		"expires":       sess.Expires.Format(time.RFC3339),
		"authorization": "Bearer " + string(sess.SessionToken),
	})
}
