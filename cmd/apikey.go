package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lintagent/lintagent/models"
)

var (
	apikeyTeam      string
	apikeyCreatedBy string
	apikeyExpiresIn int
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys for the REST surface",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	Long: `Creates an API key and prints the raw key once. Only the SHA-256 hash
is stored; a lost key cannot be recovered, only revoked and replaced.`,
	RunE: runAPIKeyCreate,
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys (hashes only)",
	RunE:  runAPIKeyList,
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <key-hash>",
	Short: "Revoke an API key by its hash",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

func init() {
	apikeyCreateCmd.Flags().StringVar(&apikeyTeam, "team", "", "team the key belongs to (required)")
	apikeyCreateCmd.Flags().StringVar(&apikeyCreatedBy, "created-by", "", "who requested the key")
	apikeyCreateCmd.Flags().IntVar(&apikeyExpiresIn, "expires-in-days", 0, "expiry in days (0 = never)")
	_ = apikeyCreateCmd.MarkFlagRequired("team")
	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyListCmd, apikeyRevokeCmd)
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, closeDB, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	raw := "la_" + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	sum := sha256.Sum256([]byte(raw))

	key := &models.APIKey{
		KeyHash:   hex.EncodeToString(sum[:]),
		Team:      apikeyTeam,
		CreatedBy: apikeyCreatedBy,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if apikeyExpiresIn > 0 {
		exp := time.Now().UTC().AddDate(0, 0, apikeyExpiresIn)
		key.ExpiresAt = &exp
	}
	if err := st.InsertAPIKey(ctx, key); err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("API key created"))
	fmt.Printf("Key:  %s\n", raw)
	fmt.Printf("Hash: %s\n", key.KeyHash)
	if key.ExpiresAt != nil {
		fmt.Printf("Expires: %s\n", key.ExpiresAt.Format(time.RFC1123))
	}
	fmt.Println(dimStyle.Render("Store the key now; it will not be shown again."))
	return nil
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, closeDB, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	keys, err := st.ListAPIKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println("No API keys.")
		return nil
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-16s %-12s %-8s %-25s %s",
		"HASH", "TEAM", "ACTIVE", "CREATED", "LAST USED")))
	for _, k := range keys {
		lastUsed := "never"
		if k.LastUsed != nil {
			lastUsed = k.LastUsed.Local().Format("2006-01-02 15:04")
		}
		fmt.Printf("%-16s %-12s %-8t %-25s %s\n",
			k.KeyHash[:16], k.Team, k.IsActive,
			k.CreatedAt.Local().Format("2006-01-02 15:04"), lastUsed)
	}
	return nil
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	st, closeDB, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := st.RevokeAPIKey(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("Key revoked. Running gateways drop it from cache within a minute.")
	return nil
}
