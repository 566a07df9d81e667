// admin is an operator CLI for out-of-band account maintenance, grounded
// on the teacher's cmd/control/main.go (flag.NewFlagSet per subcommand,
// direct pool access) with every tenant/membership command dropped — no
// Tenant entity exists in this module's scope.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/traderguard/authcore/internal/auth"
	"github.com/traderguard/authcore/internal/config"
	"github.com/traderguard/authcore/internal/userstore"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: admin <command> [args]")
		fmt.Println("Commands:")
		fmt.Println("  reset-password  Reset a user's password directly in the database")
		fmt.Println("  check-user      Print a user's account status")
		fmt.Println("  set-status      Set a user's account status (active, suspended, disabled)")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "reset-password":
		resetPasswordCmd()
	case "check-user":
		checkUserCmd()
	case "set-status":
		setStatusCmd()
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

func connect() (*pgxpool.Pool, error) {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}
	return pgxpool.New(context.Background(), cfg.DatabaseURL)
}

func resetPasswordCmd() {
	fs := flag.NewFlagSet("reset-password", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	password := fs.String("password", "", "new password")
	fs.Parse(os.Args[2:])

	if *email == "" || *password == "" {
		fmt.Println("Error: --email and --password are required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	pool, err := connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer pool.Close()

	users := userstore.New(pool)
	user, err := users.GetByEmail(context.Background(), *email)
	if err != nil {
		log.Fatalf("❌ user not found: %v", err)
	}

	hasher := auth.NewBcryptHasher()
	hash, err := hasher.Hash(*password)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	if err := users.SetPasswordHash(context.Background(), user.ID, hash); err != nil {
		log.Fatalf("❌ failed to update password: %v", err)
	}

	fmt.Printf("✅ password reset for %s\n", *email)
}

// setStatusCmd is the only way to move an account into or out of SUSPENDED —
// unlike LOCKED, nothing in the request path sets or clears it automatically.
func setStatusCmd() {
	fs := flag.NewFlagSet("set-status", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	status := fs.String("status", "", "new status: active, suspended, disabled")
	fs.Parse(os.Args[2:])

	valid := map[string]userstore.Status{
		"active":    userstore.StatusActive,
		"suspended": userstore.StatusSuspended,
		"disabled":  userstore.StatusDisabled,
	}
	newStatus, ok := valid[*status]
	if *email == "" || !ok {
		fmt.Println("Error: --email is required and --status must be one of active, suspended, disabled")
		fs.PrintDefaults()
		os.Exit(1)
	}

	pool, err := connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer pool.Close()

	users := userstore.New(pool)
	user, err := users.GetByEmail(context.Background(), *email)
	if err != nil {
		log.Fatalf("❌ user not found: %v", err)
	}

	if err := users.SetStatus(context.Background(), user.ID, newStatus); err != nil {
		log.Fatalf("❌ failed to update status: %v", err)
	}

	fmt.Printf("✅ %s set to %s\n", *email, newStatus)
}

func checkUserCmd() {
	fs := flag.NewFlagSet("check-user", flag.ExitOnError)
	email := fs.String("email", "", "user email")
	fs.Parse(os.Args[2:])

	if *email == "" {
		fmt.Println("Error: --email is required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	pool, err := connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer pool.Close()

	users := userstore.New(pool)
	user, err := users.GetByEmail(context.Background(), *email)
	if err != nil {
		log.Fatalf("❌ user not found: %v", err)
	}

	fmt.Printf("✅ user found\n")
	fmt.Printf("ID: %s\n", user.ID)
	fmt.Printf("Status: %s\n", user.Status)
	fmt.Printf("EmailVerified: %v\n", user.EmailVerified)
	fmt.Printf("MFAEnabled: %v\n", user.MFAEnabled)
	fmt.Printf("FailedLoginAttempts: %d\n", user.FailedLoginAttempts)
	if user.Locked() {
		fmt.Printf("Locked until: %s\n", user.LockedUntil)
	}
}
