package command

import (
	"errors"
	"fmt"
	"time"

	"uniportal/cmd/cli/authentication"
	"uniportal/cmd/cli/command/client"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// auth.go manages the portal token. Tokens are issued by the portal's
// identity provider; the CLI only stores them.

// authCmd represents the auth command for authentication related subcommands
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the stored portal token",
}

var setTokenCmd = &cobra.Command{
	Use:   "set-token [jwt]",
	Short: "Store a portal access token in the OS keyring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := authentication.CredentialsFromToken(args[0])
		if err != nil {
			return fmt.Errorf("token rejected: %w", err)
		}
		if creds.Expired(time.Now()) {
			return errors.New("token has already expired")
		}
		if err := authentication.StoreTokens(creds); err != nil {
			return fmt.Errorf("could not save token: %w", err)
		}

		color.Green("✓ Token stored for user %s (%s)", creds.UserID, roleOrDefault(creds.Role))
		return nil
	},
}

var clearTokenCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := authentication.DeleteTokens(); err != nil {
			return fmt.Errorf("could not remove token: %w", err)
		}
		fmt.Println("✓ Token removed.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who the CLI is acting as",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := currentCredentials()
		if err != nil {
			return err
		}
		fmt.Printf("User:  %s\n", creds.UserID)
		fmt.Printf("Role:  %s\n", roleOrDefault(creds.Role))
		if creds.ExpiresAt > 0 {
			exp := time.Unix(creds.ExpiresAt, 0)
			if creds.Expired(time.Now()) {
				color.Red("Token: expired at %s", exp.Format(time.RFC3339))
			} else {
				fmt.Printf("Token: valid until %s\n", exp.Format(time.RFC3339))
			}
		}
		fmt.Printf("API:   %s\n", cfg.APIURL)
		return nil
	},
}

func init() {
	authCmd.AddCommand(setTokenCmd)
	authCmd.AddCommand(clearTokenCmd)
	authCmd.AddCommand(statusCmd)
}

// currentCredentials prefers UNIPORTAL_TOKEN/config over the keyring.
func currentCredentials() (*authentication.StoredCredentials, error) {
	if cfg != nil && cfg.Token != "" {
		return authentication.CredentialsFromToken(cfg.Token)
	}
	return authentication.GetTokens()
}

// GetAuthenticatedClient returns an HTTP client carrying the stored token.
func GetAuthenticatedClient() (*client.HTTPClient, *authentication.StoredCredentials, error) {
	creds, err := currentCredentials()
	if err != nil {
		return nil, nil, err
	}
	if creds.Expired(time.Now()) {
		return nil, nil, errors.New("stored token has expired, run `portalctl auth set-token` again")
	}

	httpClient := client.NewHTTPClient(cfg.APIURL)
	httpClient.SetToken(creds.AccessToken)
	return httpClient, creds, nil
}

func roleOrDefault(role string) string {
	if role == "" {
		return "user"
	}
	return role
}
