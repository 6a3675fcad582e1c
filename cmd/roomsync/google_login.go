package main

import (
	"context"
	"fmt"
	"os"

	"github.com/guilherme-santos/roomsync"
	"github.com/guilherme-santos/roomsync/calendar/google"
)

var GoogleLoginCommand = _googleLoginCommand{
	Name:        "google-login",
	Description: "Authorize access to Google Calendar and print the token",
}

type _googleLoginCommand struct {
	Name        string
	Description string
}

func (s _googleLoginCommand) Run(ctx context.Context, env *environment, args []string) error {
	var (
		credentialsFile string
		addr            string
	)

	fs := newFlagSet(s.Name)
	fs.StringVar(&credentialsFile, "credentials-file", env.cfg.Google.CredentialsFile, "OAuth client credentials downloaded from Google")
	fs.StringVar(&addr, "addr", ":8080", "address receiving the OAuth redirect")

	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}
	if credentialsFile == "" {
		return fmt.Errorf("%w: -credentials-file is required", roomsync.ErrConfig)
	}

	credFile, err := os.ReadFile(credentialsFile)
	if err != nil {
		return fmt.Errorf("%w: unable to read credentials file: %v", roomsync.ErrConfig, err)
	}
	googleCal, err := google.NewClient(credFile, env.log)
	if err != nil {
		return err
	}

	token, err := googleCal.Login(ctx, os.Stderr, addr)
	if err != nil {
		return fmt.Errorf("google: logging in: %w", err)
	}

	fmt.Fprintln(os.Stderr, "Store the token below, e.g. with `pass insert -m google/roomsync`, and use it as -password:")
	fmt.Println(string(token))
	return nil
}
