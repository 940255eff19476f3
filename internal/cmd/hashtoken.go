package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

func newHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Print the bcrypt hash to put in server.token_hash",
		Long: `Hashes the given bearer token, or generates a new sk- token when none is
given. Clients send the token; the server keeps only the hash.`,
		Args: cobra.MaximumNArgs(1),
		// no config needed
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) == 1 {
				token = args[0]
			} else {
				b := make([]byte, 16)
				if _, err := rand.Read(b); err != nil {
					return err
				}
				token = "sk-" + hex.EncodeToString(b)
				fmt.Fprintf(cmd.OutOrStdout(), "token: %s\n", token)
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "hash:  %s\n", hash)
			return nil
		},
	}
}
