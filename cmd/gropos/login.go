package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate this register with the backend",
	Long:  `Login stores the session token for later sync operations.`,
	Example: `  gropos login --email manager@store.example.com
  gropos login --email manager@store.example.com --password -`,
	RunE: runLogin,
}

var (
	loginEmail    string
	loginPassword string
)

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "",
		"Email address (required unless set in config)")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "",
		"Password (will prompt if not provided)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if loginEmail == "" {
		loginEmail = cfg.Auth.Email
	}
	if loginPassword == "" {
		loginPassword = cfg.Auth.Password
	}

	if loginEmail == "" {
		return fmt.Errorf("email required")
	}

	if loginPassword == "" {
		var err error
		loginPassword, err = promptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}

	if err := apiClient.Auth.Login(ctx, loginEmail, loginPassword); err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": false,
				"error":   err.Error(),
			})
		} else {
			printError("Login failed: %v", err)
		}
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"email":   loginEmail,
		})
	} else {
		printSuccess("Successfully logged in as %s", loginEmail)
	}

	return nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and clear the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.Logout(context.Background()); err != nil {
			printWarning("Logout finished with errors: %v", err)
		}
		printSuccess("Logged out")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	// Read password without echo
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", err
	}

	return string(password), nil
}
