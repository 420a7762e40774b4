// Command bootstrap-api-key creates the first user and an API key directly
// in PostgreSQL, optionally seeding the user's credit balance.
//
//	go run ./scripts/bootstrap-api-key.go -email ops@example.com -credits 100 -format json
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aivideopro/aivideopro/internal/auth"
	"github.com/aivideopro/aivideopro/internal/model"
	"github.com/aivideopro/aivideopro/internal/repository"
)

type options struct {
	databaseURL string
	userID      string
	email       string
	keyName     string
	scopes      string
	credits     int
	format      string
}

type result struct {
	UserID    string   `json:"user_id"`
	Email     string   `json:"email"`
	Credits   int      `json:"credits"`
	KeyID     string   `json:"key_id"`
	Key       string   `json:"key"`
	KeyPrefix string   `json:"key_prefix"`
	Scopes    []string `json:"scopes"`
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.StringVar(&opts.userID, "user-id", "system", "ID of the user that owns the key")
	flag.StringVar(&opts.email, "email", "system@aivideopro.local", "user email")
	flag.StringVar(&opts.keyName, "name", "bootstrap", "API key name")
	flag.StringVar(&opts.scopes, "scopes", "admin", "comma-separated scopes (read,write,webhook,admin)")
	flag.IntVar(&opts.credits, "credits", 0, "credits to grant as an admin_grant ledger entry")
	flag.StringVar(&opts.format, "format", "plain", "output format: plain or json")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := run(ctx, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bootstrap-api-key:", err)
		os.Exit(1)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
		return
	}
	fmt.Println(res.Key)
}

func run(ctx context.Context, opts options) (*result, error) {
	switch {
	case opts.databaseURL == "":
		return nil, errors.New("DATABASE_URL is required")
	case opts.credits < 0:
		return nil, errors.New("credits must not be negative")
	case opts.format != "plain" && opts.format != "json":
		return nil, fmt.Errorf("unknown format %q: use plain or json", opts.format)
	}
	scopes, err := parseScopes(opts.scopes)
	if err != nil {
		return nil, err
	}

	repo, err := repository.New(ctx, opts.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	defer repo.Close()

	user, _, err := repo.GetOrCreateUser(ctx, &model.User{ID: opts.userID, Email: opts.email, CreatedAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	if user.ID != opts.userID {
		return nil, fmt.Errorf("email %s already belongs to user %s", opts.email, user.ID)
	}

	balance := user.Credits
	if opts.credits > 0 {
		if balance, err = repo.GrantCredits(ctx, user.ID, opts.credits, model.CreditReasonAdminGrant, "bootstrap"); err != nil {
			return nil, fmt.Errorf("grant credits: %w", err)
		}
	}

	key, plaintext, err := auth.NewAPIKey(user.ID, opts.keyName, scopes, model.TierUnlimited)
	if err != nil {
		return nil, fmt.Errorf("mint api key: %w", err)
	}
	if err := repo.CreateAPIKey(ctx, key); err != nil {
		return nil, err
	}

	return &result{
		UserID:    user.ID,
		Email:     user.Email,
		Credits:   balance,
		KeyID:     key.ID,
		Key:       plaintext,
		KeyPrefix: key.KeyPrefix,
		Scopes:    scopes,
	}, nil
}

// parseScopes dedupes and validates a comma list. An empty list means admin.
func parseScopes(input string) ([]string, error) {
	var scopes []string
	for _, s := range strings.Split(input, ",") {
		s = strings.TrimSpace(s)
		switch {
		case s == "" || slices.Contains(scopes, s):
		case !slices.Contains(model.ValidScopes, s):
			return nil, fmt.Errorf("invalid scope %q", s)
		default:
			scopes = append(scopes, s)
		}
	}
	if len(scopes) == 0 {
		return []string{model.ScopeAdmin}, nil
	}
	return scopes, nil
}
