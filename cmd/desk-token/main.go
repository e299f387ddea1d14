// Command desk-token mints a bearer token for an account address.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/ledgerdesk/ledgerdesk/internal/auth"
	"github.com/ledgerdesk/ledgerdesk/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	address := pflag.StringP("address", "a", "", "account address (0x...)")
	secret := pflag.String("secret", cfg.Auth.JWTSecret, "signing secret")
	ttl := pflag.Duration("ttl", cfg.Auth.AccessTokenTTL(), "token lifetime")
	pflag.Parse()

	if *address == "" && pflag.NArg() > 0 {
		*address = pflag.Arg(0)
	}
	if *address == "" {
		fmt.Fprintln(os.Stderr, "usage: desk-token --address 0x...")
		os.Exit(2)
	}

	token, expires, err := auth.NewTokenManager(*secret, *ttl).GenerateToken(*address)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
}
