package cmd

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/marcus/ck/internal/identity"
	"github.com/marcus/ck/internal/output"
)

var authCmd = &cobra.Command{
	Use:     "auth",
	Short:   "Manage sync authentication",
	GroupID: "system",
}

var (
	authUser  string
	authEmail string
	authToken string
)

// loginProvider picks how credentials are acquired: complete flags are
// taken as-is, anything missing falls back to an interactive form.
func loginProvider(user, email, token string) identity.Provider {
	if user != "" && token != "" {
		return identity.ProviderFunc(func() (*identity.Credentials, error) {
			return &identity.Credentials{UserID: user, Email: email, AccessToken: token}, nil
		})
	}
	return identity.ProviderFunc(func() (*identity.Credentials, error) {
		creds := &identity.Credentials{UserID: user, Email: email, AccessToken: token}
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("User ID").Value(&creds.UserID),
			huh.NewInput().Title("Email").Value(&creds.Email),
			huh.NewInput().Title("Access token").EchoMode(huh.EchoModePassword).Value(&creds.AccessToken),
		))
		if err := form.Run(); err != nil {
			return nil, fmt.Errorf("%w: %v", identity.ErrSignInFailed, err)
		}
		return creds, nil
	})
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in for cloud sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := loginProvider(authUser, authEmail, authToken).SignIn()
		if err != nil {
			return err
		}

		if err := identity.Save(creds); err != nil {
			output.Error("save credentials: %v", err)
			return err
		}
		output.Success("Signed in as %s", creds.UserID)

		// Signing in makes the cloud copy authoritative when one exists
		eng, done, err := openEngine()
		if err != nil {
			return err
		}
		defer done()
		if err := eng.LoadFromCloud(); err != nil {
			output.Warning("cloud load: %v", err)
			return nil
		}
		printStatus(eng)
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := identity.Clear(); err != nil {
			output.Error("logout: %v", err)
			return err
		}
		fmt.Println("Signed out.")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := identity.Load()
		if err != nil {
			output.Error("load credentials: %v", err)
			return err
		}
		if creds == nil {
			fmt.Println("Not signed in.")
			return nil
		}

		tokenPrefix := creds.AccessToken
		if len(tokenPrefix) > 12 {
			tokenPrefix = tokenPrefix[:12] + "..."
		}
		fmt.Printf("User:  %s\n", creds.UserID)
		if creds.Email != "" {
			fmt.Printf("Email: %s\n", creds.Email)
		}
		fmt.Printf("Token: %s\n", tokenPrefix)
		return nil
	},
}

func init() {
	authLoginCmd.Flags().StringVar(&authUser, "user", "", "User ID")
	authLoginCmd.Flags().StringVar(&authEmail, "email", "", "Email address")
	authLoginCmd.Flags().StringVar(&authToken, "token", "", "Access token")

	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)
	rootCmd.AddCommand(authCmd)
}
