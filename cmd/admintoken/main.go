// Command admintoken mints an operator JWT for the settlement and gateway
// admin routes, signed with the configured jwt.secret.
package main

import (
	"flag"
	"fmt"
	"os"

	"savings-ledger/config"
	"savings-ledger/internal/service"
	"savings-ledger/pkg/clock"
	"savings-ledger/pkg/logger"
)

func main() {
	subject := flag.String("subject", "", "operator id recorded in audit logs (required)")
	role := flag.String("role", "operator", "role claim")
	expiry := flag.Duration("expiry", 0, "token lifetime, defaults to jwt.expiry")
	configPath := flag.String("config", "", "config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, true)

	if *subject == "" {
		log.Fatal().Msg("-subject is required")
	}
	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret is empty, set SVL_JWT_SECRET")
	}

	ttl := cfg.JWT.Expiry
	if *expiry > 0 {
		ttl = *expiry
	}

	tokens := service.NewJWTTokenService(cfg.JWT.Secret, ttl, cfg.JWT.Issuer, clock.System{})
	token, expiresAt, err := tokens.Generate(*subject, *role)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign token")
	}

	log.Debug().Str("subject", *subject).Time("expires_at", expiresAt).Msg("token issued")
	fmt.Println(token)
}
