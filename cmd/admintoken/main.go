// Command admintoken issues an admin bearer token for the /admin routes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"clinical-search-api/internal/auth"
	"clinical-search-api/internal/config"
)

func main() {
	subject := flag.String("subject", "ops", "who the token is issued to")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to ADMIN_TOKEN_TTL)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *ttl <= 0 {
		*ttl = cfg.AdminTokenTTL
	}

	// The API checks revocation in Redis, so the token id must be stored there.
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	issuer, err := auth.NewTokenIssuer(cfg.AdminSecret, *ttl, auth.NewRedisTokenStore(rdb))
	if err != nil {
		log.Fatalf("Failed to create token issuer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := issuer.Issue(ctx, *subject)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(token); err != nil {
		log.Fatalf("Failed to write token: %v", err)
	}
}
