// Command embedtoken mints a signed embed token for one store. Run it when
// onboarding a tenant manually or when rotating the embed secret.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"fitstudio/internal/middleware"
)

func main() {
	var (
		storeFlag string
		planFlag  string
		ttlFlag   time.Duration
	)
	flag.StringVar(&storeFlag, "store", "", "store id the token authenticates")
	flag.StringVar(&planFlag, "plan", "starter", "subscription plan recorded in the claims")
	flag.DurationVar(&ttlFlag, "ttl", 365*24*time.Hour, "token lifetime")
	flag.Parse()

	storeID := strings.TrimSpace(storeFlag)
	if storeID == "" {
		fmt.Fprintln(os.Stderr, "-store is required")
		os.Exit(1)
	}

	secret := strings.TrimSpace(os.Getenv("EMBED_TOKEN_SECRET"))
	if secret == "" {
		fmt.Fprintln(os.Stderr, "EMBED_TOKEN_SECRET is required")
		os.Exit(1)
	}

	token, err := middleware.SignStoreToken(secret, middleware.StoreClaims{
		StoreID:  storeID,
		Plan:     planFlag,
		Exp:      time.Now().Add(ttlFlag).Unix(),
		Issuer:   "fitstudio",
		Audience: "embed",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
