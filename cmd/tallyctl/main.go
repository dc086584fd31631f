// main.go - Admin control tool for tally
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"tally/internal"
	"tally/internal/auth"
	"tally/internal/events"
	"tally/internal/seeder"
	"tally/internal/settings"
	"tally/internal/users"
	"tally/internal/websites"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	Name() string
	Description() string
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&CreateUserCommand{},
	&ChangePasswordCommand{},
	&IssueTokenCommand{},
	&MigrateCommand{},
	&SeedCommand{},
	&VerifySiteCommand{},
	&ExcludeIPCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs(os.Args[1:])

	cmd := findCommand(cmdName)
	if cmd == nil {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	if _, ok := cmd.(*HelpCommand); ok {
		_ = cmd.Execute(ctx, nil, args)
		return
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := app.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: Cleanup error: %v", err)
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

// CreateUserCommand registers an account
type CreateUserCommand struct{}

func (c *CreateUserCommand) Name() string        { return "create-user" }
func (c *CreateUserCommand) Description() string { return "Creates a user: create-user <name> <email> [password]" }

func (c *CreateUserCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s <name> <email> [password]", c.Name())
	}

	name, email := args[0], args[1]
	password := ""
	if len(args) >= 3 {
		password = args[2]
	} else {
		var err error
		if password, err = promptNewPassword(); err != nil {
			return err
		}
	}

	user, err := users.Register(app.DBManager.GetConnection(), app.Logger, name, email, password)
	if errors.Is(err, users.ErrEmailExists) {
		log.Printf("User %s already exists", email)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("Created user %d (%s)\n", user.ID, user.Email)
	return nil
}

// ChangePasswordCommand updates the password of an existing user
type ChangePasswordCommand struct{}

func (c *ChangePasswordCommand) Name() string { return "change-password" }
func (c *ChangePasswordCommand) Description() string {
	return "Changes a user's password: change-password <email> [password]"
}

func (c *ChangePasswordCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	var email string
	if len(args) >= 1 {
		email = args[0]
	} else {
		fmt.Print("Enter email: ")
		input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		email = strings.TrimSpace(input)
	}
	if email == "" {
		return fmt.Errorf("email is required")
	}

	db := app.DBManager.GetConnection()
	if _, err := users.FindByEmail(db, email); err != nil {
		return fmt.Errorf("user lookup failed: %w", err)
	}

	password := ""
	if len(args) >= 2 {
		password = args[1]
	} else {
		var err error
		if password, err = promptNewPassword(); err != nil {
			return err
		}
	}

	if err := users.ChangePassword(db, app.Logger, email, password); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	fmt.Println("Password updated successfully")
	return nil
}

// IssueTokenCommand prints a bearer token for scripted access to the query API
type IssueTokenCommand struct{}

func (c *IssueTokenCommand) Name() string        { return "issue-token" }
func (c *IssueTokenCommand) Description() string { return "Prints a bearer token: issue-token <email>" }

func (c *IssueTokenCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <email>", c.Name())
	}

	user, err := users.FindByEmail(app.DBManager.GetConnection(), args[0])
	if err != nil {
		return fmt.Errorf("user lookup failed: %w", err)
	}

	token, err := auth.IssueToken(user.ID, user.Email)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// SeedCommand populates the DB with sample traffic
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample traffic" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	visits := fs.Int("visits", 10000, "number of visits to generate")
	days := fs.Int("days", 30, "spread visits over this many days")
	domain := fs.String("domain", "", "existing site domain to seed (creates the demo account when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	se := seeder.NewSeeder(app.DBManager, slog.Default(), *visits)
	se.Days = *days

	if *domain != "" {
		created, err := se.SeedDomain(ctx, *domain)
		if err != nil {
			return err
		}
		fmt.Printf("Seeded %d visits for %s\n", created, *domain)
		return nil
	}

	return se.Run(ctx)
}

// VerifySiteCommand checks whether a site's snippet is reporting
type VerifySiteCommand struct{}

func (c *VerifySiteCommand) Name() string { return "verify-site" }
func (c *VerifySiteCommand) Description() string {
	return "Checks a site's tracking snippet: verify-site <site-id>"
}

func (c *VerifySiteCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <site-id>", c.Name())
	}
	siteID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid site id %q", args[0])
	}

	status, err := websites.VerifyScript(app.DBManager.GetConnection(), app.Logger, uint(siteID))
	if err != nil {
		return err
	}
	fmt.Printf("Site %d: %s\n", siteID, status)
	return nil
}

// ExcludeIPCommand lists or extends the excluded IP ranges
type ExcludeIPCommand struct{}

func (c *ExcludeIPCommand) Name() string { return "exclude-ip" }
func (c *ExcludeIPCommand) Description() string {
	return "Drops beacons from an IP or CIDR: exclude-ip [ip-or-cidr]"
}

func (c *ExcludeIPCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db := app.DBManager.GetConnection()
	if len(args) >= 1 {
		if err := settings.AddExcludedIP(db, app.Logger, args[0]); err != nil {
			return err
		}
	}

	entries, err := settings.ExcludedIPs(db)
	if err != nil {
		return err
	}
	fmt.Println("Excluded IPs:")
	for _, entry := range entries {
		fmt.Printf("  %s\n", entry)
	}
	return nil
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db := app.DBManager.GetConnection()

	var userCount, siteCount, visitCount, eventCount int64
	for _, q := range []struct {
		model any
		dest  *int64
	}{
		{&users.User{}, &userCount},
		{&websites.Site{}, &siteCount},
		{&events.Visit{}, &visitCount},
		{&events.Event{}, &eventCount},
	} {
		if err := db.Model(q.model).Count(q.dest).Error; err != nil {
			return fmt.Errorf("database error: %w", err)
		}
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Users: %d", userCount)
	log.Printf("- Sites: %d", siteCount)
	log.Printf("- Visits: %d", visitCount)
	log.Printf("- Events: %d", eventCount)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}

	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	log.Printf("- In Use: %d", sqlDB.Stats().InUse)
	log.Printf("- Idle: %d", sqlDB.Stats().Idle)
	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage(os.Stdout)
	return nil
}

// promptNewPassword reads a password twice from the terminal without echo.
func promptNewPassword() (string, error) {
	fmt.Printf("Enter new password (minimum %d characters): ", users.MinPasswordLength)
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Print("Confirm new password: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	password := strings.TrimSpace(string(first))
	if password != strings.TrimSpace(string(second)) {
		return "", fmt.Errorf("passwords do not match")
	}
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return password, nil
}

// parseArgs splits the command name from its arguments
func parseArgs(args []string) (string, []string) {
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tallyctl [command] [args...]")
	fmt.Fprintln(w, "Available commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %s: %s\n", cmd.Name(), cmd.Description())
	}
}
