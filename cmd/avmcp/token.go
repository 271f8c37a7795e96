package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"avmcp/internal/auth"
)

var tokenFormat string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage bearer tokens for the HTTP transport",
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new bearer token",
	Long: `Generate a random bearer token and print it with its bcrypt hash.

Only the hash belongs in configuration:
  [server]
  authTokenHashes = ["$2a$12$..."]

or AVMCP_AUTH_TOKEN_HASHES. The token itself is shown once and not stored.`,
	Args: cobra.NoArgs,
	RunE: runTokenCreate,
}

func init() {
	tokenCreateCmd.Flags().StringVar(&tokenFormat, "format", string(FormatHuman), "Output format (human, json)")

	tokenCmd.AddCommand(tokenCreateCmd)
	rootCmd.AddCommand(tokenCmd)
}

// TokenCreateResponse is the JSON output of token create.
type TokenCreateResponse struct {
	Token string `json:"token"`
	Hash  string `json:"hash"`
}

func runTokenCreate(cmd *cobra.Command, args []string) error {
	format, err := parseFormat(tokenFormat)
	if err != nil {
		return err
	}

	token, err := auth.GenerateToken()
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	hash, err := auth.HashToken(token)
	if err != nil {
		return fmt.Errorf("failed to hash token: %w", err)
	}

	if format == FormatJSON {
		data, err := json.MarshalIndent(TokenCreateResponse{Token: token, Hash: hash}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println("Token created. Save it now, it will not be shown again.")
	fmt.Println()
	fmt.Printf("  Token: %s\n", token)
	fmt.Printf("  Hash:  %s\n", hash)
	fmt.Println()
	fmt.Println("Add the hash to server.authTokenHashes and send the token as:")
	fmt.Println("  Authorization: Bearer <token>")
	return nil
}
