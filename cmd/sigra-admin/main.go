// sigra-admin performs account maintenance against the SigraFilm store
// without going through the web panel.
//
//	sigra-admin bootstrap [--force]
//	sigra-admin create-user --username U --password P [--role admin]
//	sigra-admin reset-password --username U --password P
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"sigrafilm/internal/app"
	"sigrafilm/internal/auth"
	"sigrafilm/internal/config"
	"sigrafilm/internal/database"
	"sigrafilm/internal/logger"
	"sigrafilm/internal/models"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type command func(ctx context.Context, users *auth.UserService, args []string, out io.Writer) error

var commands = map[string]command{
	"bootstrap":      bootstrap,
	"create-user":    createUser,
	"reset-password": resetPassword,
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		printHelp(out)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		printHelp(out)
		return fmt.Errorf("unknown command %q", args[0])
	}

	cfg := config.Load()
	logger.InitLogger(logger.ParseLevel(cfg.LogLevel), os.Stderr)

	// --database-url is shared by every command; pick it out before the
	// command parses its own flags.
	rest, dbURL, err := splitDatabaseURL(args[1:])
	if err != nil {
		return err
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if cfg.DatabaseURL == "" {
		if err := cfg.EnsureDataDir(); err != nil {
			return err
		}
	}

	db, err := database.Open(cfg.DatabaseURL, cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return cmd(ctx, auth.NewUserService(db, app.FixedAdmin(cfg)), rest, out)
}

func splitDatabaseURL(args []string) ([]string, string, error) {
	var rest []string
	var dbURL string
	for i := 0; i < len(args); i++ {
		switch a := args[i]; {
		case a == "--database-url":
			if i+1 >= len(args) {
				return nil, "", errors.New("--database-url requires a value")
			}
			dbURL = args[i+1]
			i++
		case strings.HasPrefix(a, "--database-url="):
			dbURL = strings.TrimPrefix(a, "--database-url=")
		default:
			rest = append(rest, a)
		}
	}
	return rest, dbURL, nil
}

func bootstrap(ctx context.Context, users *auth.UserService, args []string, out io.Writer) error {
	flagSet := pflag.NewFlagSet("bootstrap", pflag.ContinueOnError)
	force := flagSet.Bool("force", false, "overwrite the stored hash and role with the configured ones")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	fixed := users.FixedAdmin()
	if fixed.Password == "" && fixed.PasswordHash == "" {
		return errors.New("no admin credential configured: set SIGRA_ADMIN_PASSWORD or SIGRA_ADMIN_PASSWORD_HASH")
	}

	created, err := users.ReconcileFixedAdmin(ctx, *force)
	if err != nil {
		return err
	}
	switch {
	case created:
		fmt.Fprintf(out, "created admin %q\n", fixed.Username)
	case *force || fixed.Lock:
		fmt.Fprintf(out, "admin %q restored\n", fixed.Username)
	default:
		fmt.Fprintf(out, "admin %q already present\n", fixed.Username)
	}
	return nil
}

func createUser(ctx context.Context, users *auth.UserService, args []string, out io.Writer) error {
	flagSet := pflag.NewFlagSet("create-user", pflag.ContinueOnError)
	username := flagSet.String("username", "", "login name")
	password := flagSet.String("password", "", "initial password")
	role := flagSet.String("role", string(models.RoleUser), "user or admin")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	user, err := users.Create(ctx, *username, *password, models.Role(*role))
	if err != nil {
		return err
	}
	users.LogAction(ctx, nil, "user_create", "Created user: "+user.Username+" (cli)", "")
	fmt.Fprintf(out, "created %s %q (id %d)\n", user.Role, user.Username, user.ID)
	return nil
}

func resetPassword(ctx context.Context, users *auth.UserService, args []string, out io.Writer) error {
	flagSet := pflag.NewFlagSet("reset-password", pflag.ContinueOnError)
	username := flagSet.String("username", "", "login name")
	password := flagSet.String("password", "", "new password")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	user, err := users.GetByUsername(ctx, *username)
	if err != nil {
		return err
	}
	if err := users.ResetPassword(ctx, user.ID, *password); err != nil {
		return err
	}
	users.LogAction(ctx, nil, "user_reset_password", "User: "+user.Username+" (cli)", "")
	fmt.Fprintf(out, "password updated for %q\n", user.Username)
	return nil
}

func printHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: sigra-admin <command> [flags]

Commands:
  bootstrap [--force]                              create or restore the fixed admin
  create-user --username U --password P [--role R] add an account
  reset-password --username U --password P         set a new password

Every command accepts --database-url to override DATABASE_URL.
`)
}
