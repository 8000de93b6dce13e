package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/marcus/ck/internal/server"
)

func runToken(args []string) {
	if len(args) == 0 {
		printTokenUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "add":
		runTokenAdd(args[1:])
	case "revoke":
		runTokenRevoke(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown token command: %s\n", args[0])
		printTokenUsage()
		os.Exit(1)
	}
}

func printTokenUsage() {
	fmt.Fprintln(os.Stderr, `Usage: ck-sync token <command> [flags]

Commands:
  add     Provision a bearer token for a user
  revoke  Remove a bearer token`)
}

func openDB(dbPath string) *server.DB {
	if dbPath == "" {
		cfg := server.LoadConfig()
		dbPath = cfg.DBPath
	}
	store, err := server.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runTokenAdd(args []string) {
	fs := flag.NewFlagSet("token add", flag.ExitOnError)
	user := fs.String("user", "", "user id the token authenticates")
	email := fs.String("email", "", "user email (passthrough)")
	token := fs.String("token", "", "token value (generated when empty)")
	dbPath := fs.String("db", "", "path to the server db (default: from CK_SYNC_DB_PATH or ./data/ck-sync.db)")
	fs.Parse(args)

	if *user == "" {
		fmt.Fprintln(os.Stderr, "error: --user is required")
		fs.Usage()
		os.Exit(1)
	}

	store := openDB(*dbPath)
	defer store.Close()

	effective, err := store.AddToken(*token, *user, *email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("provisioned token for %s\n", *user)
	fmt.Printf("  token: %s\n", effective)
	fmt.Println("\nSave this token now -- it is stored server-side in plain form only here.")
}

func runTokenRevoke(args []string) {
	fs := flag.NewFlagSet("token revoke", flag.ExitOnError)
	token := fs.String("token", "", "token value to revoke")
	dbPath := fs.String("db", "", "path to the server db (default: from CK_SYNC_DB_PATH or ./data/ck-sync.db)")
	fs.Parse(args)

	if *token == "" {
		fmt.Fprintln(os.Stderr, "error: --token is required")
		fs.Usage()
		os.Exit(1)
	}

	store := openDB(*dbPath)
	defer store.Close()

	if err := store.RevokeToken(*token); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("token revoked")
}
