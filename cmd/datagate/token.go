package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"datagate/internal/auth"
	"datagate/internal/metadata"
)

var (
	tokenSecret   string
	tokenUser     string
	tokenRole     string
	tokenPolicies []string
	tokenAdmin    bool
	tokenTTL      time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access token for testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		acc := &metadata.Accountability{
			User:     tokenUser,
			Role:     tokenRole,
			Policies: tokenPolicies,
			Admin:    tokenAdmin,
		}
		tok, err := auth.GenerateAccessToken(acc, resolveString(tokenSecret, cfg.JWTSecret), tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	f := tokenCmd.Flags()
	f.StringVar(&tokenSecret, "secret", "", "signing secret (default: jwt_secret from config)")
	f.StringVar(&tokenUser, "user", "", "user id")
	f.StringVar(&tokenRole, "role", "", "role")
	f.StringSliceVar(&tokenPolicies, "policy", nil, "policies")
	f.BoolVar(&tokenAdmin, "admin", false, "grant admin access")
	f.DurationVar(&tokenTTL, "ttl", auth.AccessTokenTTL, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}
