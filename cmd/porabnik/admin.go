package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/erazemk/porabnik/internal/auth"
	"github.com/erazemk/porabnik/internal/db"
	"github.com/erazemk/porabnik/internal/model"
	"github.com/erazemk/porabnik/internal/store"
)

const generatedPasswordLength = 16

func newInitCommand(c *cli) *cobra.Command {
	var office, admin string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database with a first office and admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := c.cfg.Database.Path
			exists, err := db.Exists(path)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("database %s already exists", path)
			}
			password, err := initDatabase(cmd.Context(), path, office, admin)
			if err != nil {
				return err
			}
			printInitResult(cmd.OutOrStdout(), path, office, admin, password)
			return nil
		},
	}
	cmd.Flags().StringVar(&office, "office", "Main", "name of the first office")
	cmd.Flags().StringVarP(&admin, "user", "u", "Admin", "admin username")
	return cmd
}

// initDatabase creates a new database with one office and its admin, and
// returns the admin's generated password. The files are removed on failure.
func initDatabase(ctx context.Context, path, officeName, adminName string) (string, error) {
	database, err := openDatabase(path)
	if err != nil {
		return "", err
	}

	password, err := bootstrap(ctx, database, officeName, adminName)
	database.Close()
	if err != nil {
		if rmErr := db.Remove(path); rmErr != nil {
			return "", fmt.Errorf("%w (cleanup: %v)", err, rmErr)
		}
		return "", err
	}
	return password, nil
}

func bootstrap(ctx context.Context, database *sql.DB, officeName, adminName string) (string, error) {
	password, err := auth.GeneratePassword(generatedPasswordLength)
	if err != nil {
		return "", err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	office, err := store.CreateOffice(ctx, tx, officeName)
	if err != nil {
		return "", err
	}
	if _, err := store.CreateUser(ctx, tx, adminName, hash, model.RoleAdmin, office.ID); err != nil {
		return "", fmt.Errorf("creating admin user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	return password, nil
}

// printInitResult prints the database initialization result.
func printInitResult(w io.Writer, dbPath, office, username, password string) {
	fmt.Fprintf(w, "Database created: %s\n", dbPath)
	fmt.Fprintf(w, "Office created: %s\n", office)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Admin account created:")
	fmt.Fprintf(w, "  Username: %s\n", username)
	fmt.Fprintf(w, "  Password: %s\n", password)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Save this password, it cannot be recovered.")
	fmt.Fprintln(w, "The admin can change it after logging in.")
}

func newOfficeCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "office",
		Short: "Manage offices",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add NAME",
		Short: "Create an office",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDatabase(c.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer database.Close()

			office, err := store.CreateOffice(cmd.Context(), database, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Office %q created (id %d)\n", office.Name, office.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List offices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			database, err := openDatabase(c.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer database.Close()

			offices, err := store.ListOffices(cmd.Context(), database)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCREATED")
			for _, o := range offices {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", o.ID, o.Name, o.CreatedAt.Format("2006-01-02"))
			}
			return tw.Flush()
		},
	})
	return cmd
}

func newUserCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var office, role, password string
	add := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Create a user in an office",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !model.ValidRole(role) {
				return fmt.Errorf("invalid role %q", role)
			}

			database, err := openDatabase(c.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer database.Close()

			o, err := officeByName(cmd.Context(), database, office)
			if err != nil {
				return err
			}

			generated := password == ""
			if generated {
				if password, err = auth.GeneratePassword(generatedPasswordLength); err != nil {
					return err
				}
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}

			user, err := store.CreateUser(cmd.Context(), database, args[0], hash, role, o.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %q created in %s as %s (id %d)\n", user.Username, o.Name, user.Role, user.ID)
			if generated {
				fmt.Fprintf(cmd.OutOrStdout(), "  Password: %s\n", password)
			}
			return nil
		},
	}
	add.Flags().StringVar(&office, "office", "", "office name (required)")
	add.Flags().StringVar(&role, "role", model.RoleUser, "role: admin, manager or user")
	add.Flags().StringVar(&password, "password", "", "password (generated when empty)")
	add.MarkFlagRequired("office")

	var target string
	move := &cobra.Command{
		Use:   "move USERNAME",
		Short: "Move a user, and the items they own, to another office",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDatabase(c.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer database.Close()

			user, err := store.GetUserByUsername(cmd.Context(), database, args[0])
			if err != nil {
				return err
			}
			if user == nil {
				return errors.New("user not found")
			}
			o, err := officeByName(cmd.Context(), database, target)
			if err != nil {
				return err
			}
			if err := store.MoveUser(cmd.Context(), database, user.ID, o.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %q moved to %s\n", user.Username, o.Name)
			return nil
		},
	}
	move.Flags().StringVar(&target, "office", "", "destination office name (required)")
	move.MarkFlagRequired("office")

	cmd.AddCommand(add, move)
	return cmd
}
