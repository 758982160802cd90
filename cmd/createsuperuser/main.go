package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/avelar/bookshelf-be/internal/config"
	"github.com/avelar/bookshelf-be/internal/database"
	"github.com/avelar/bookshelf-be/internal/services"
)

func main() {
	email := flag.String("email", "", "email address for the superuser account")
	password := flag.String("password", "", "password for the superuser account")
	flag.Usage = usage
	flag.Parse()

	if *email == "" || *password == "" {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fatalf("failed to load configuration: %v", err)
	}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		fatalf("failed to apply migrations: %v", err)
	}

	user, err := services.NewUserService(db).CreateSuperuser(*email, *password)
	if err != nil {
		fatalf("failed to create superuser: %v", err)
	}

	fmt.Printf("Superuser %s created (id %s)\n", user.Email, user.ID)
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: createsuperuser -email <email> -password <password>

Creates a staff+superuser account in the database configured via
DATABASE_PATH (same configuration as the server).`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
