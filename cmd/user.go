// cmd/user.go
package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"authgate/internal/adapter"
	"authgate/internal/db"
	"authgate/internal/provider"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
	Long:  `Commands for managing credentials users in the gateway database.`,
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a credentials user",
	Long: `Create a user that can sign in with an email and password.

Examples:
  # Create a new user, prompting for the password
  authgate user create --email user@example.com

  # Create a user with a custom database path
  authgate user create --email user@example.com --password secret123 --db mydata.db`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		dbPath, _ := cmd.Flags().GetString("db")

		if email == "" {
			return fmt.Errorf("--email is required")
		}
		email = provider.NormalizeEmail(email)

		if password == "" {
			var err error
			password, err = promptPassword()
			if err != nil {
				return err
			}
		}

		// Check if database exists
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database not found at %s. Run 'authgate init' first", dbPath)
		}

		database, err := db.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		if err := database.SetPassword(email, password); err != nil {
			return err
		}

		// Make sure a user row exists so sessions and linked accounts have
		// something to attach to.
		store := adapter.NewSQLite(database)
		user, err := store.GetUserByEmail(cmd.Context(), email)
		if err != nil {
			return fmt.Errorf("failed to look up user: %w", err)
		}
		if user == nil {
			user, err = store.CreateUser(cmd.Context(), &adapter.User{Email: email})
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
		}

		fmt.Printf("Created user: %s (ID: %s)\n", user.Email, user.ID)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	Long:  `Display all users in the gateway database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("db")

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database not found at %s. Run 'authgate init' first", dbPath)
		}

		database, err := db.New(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		rows, err := database.Query(`
			SELECT id, COALESCE(email, ''), COALESCE(email_verified, ''), created_at FROM auth_users
		`)
		if err != nil {
			return fmt.Errorf("failed to query users: %w", err)
		}
		defer rows.Close()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tVERIFIED\tCREATED")

		count := 0
		for rows.Next() {
			var id, email, verified, createdAt string
			if err := rows.Scan(&id, &email, &verified, &createdAt); err != nil {
				continue
			}
			if verified == "" {
				verified = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, email, verified, createdAt)
			count++
		}
		w.Flush()

		if count == 0 {
			fmt.Println("No users found")
		}

		return nil
	},
}

func promptPassword() (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("--password is required when stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) == 0 {
		return "", fmt.Errorf("password must not be empty")
	}
	return string(password), nil
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)

	// Add --db flag to user parent command (inherited by subcommands)
	userCmd.PersistentFlags().String("db", "authgate.db", "Path to database file")

	userCreateCmd.Flags().String("email", "", "User email (required)")
	userCreateCmd.Flags().String("password", "", "User password (prompted when omitted)")
}
