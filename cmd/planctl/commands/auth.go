package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/dayplan/internal/config"
	"github.com/benvon/dayplan/internal/services/oidc"
	"github.com/spf13/cobra"
)

// NewAuthCmd creates the auth command group
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Check authentication settings",
	}
	cmd.AddCommand(newAuthTestCmd())
	return cmd
}

func newAuthTestCmd() *cobra.Command {
	var jwksURL string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Fetch the configured JWKS and report its keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jwksURL == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				if cfg.AuthMode != config.AuthModeJWT {
					return fmt.Errorf("AUTH_MODE is %q; nothing to test", cfg.AuthMode)
				}
				jwksURL = cfg.JWKSURL
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Testing JWKS endpoint: %s\n", jwksURL)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			set, err := oidc.NewJWKSManager(0).GetJWKS(ctx, jwksURL)
			if err != nil {
				return fmt.Errorf("failed to fetch JWKS: %w", err)
			}
			if set.Len() == 0 {
				return fmt.Errorf("JWKS endpoint returned no keys")
			}

			for i := 0; i < set.Len(); i++ {
				key, ok := set.Key(i)
				if !ok {
					continue
				}
				fmt.Fprintf(out, "  - kid=%s kty=%s alg=%s\n", key.KeyID(), key.KeyType(), key.Algorithm())
			}
			fmt.Fprintf(out, "✓ JWKS endpoint returned %d keys\n", set.Len())
			return nil
		},
	}

	cmd.Flags().StringVar(&jwksURL, "jwks-url", "", "JWKS URL (defaults to JWKS_URL)")

	return cmd
}
