package main

import (
	"fmt"
	"os"

	"mailtriage/internal/util"
	"mailtriage/pkg/config"
)

// admintoken mints a bearer token for the admin API. There is no
// register/login flow — the operator holds the JWT secret directly,
// so this is the one-shot tool that turns it into a token the admin
// API's AuthMiddleware will accept.
func main() {
	cfg := config.Load()
	if cfg.JWT.Secret == "" {
		fmt.Fprintln(os.Stderr, "jwt.secret is not configured")
		os.Exit(1)
	}

	token, err := util.GenerateAdminToken(cfg.JWT.Secret)
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
