package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/guilherme-santos/roomsync/internal/config"
	"github.com/guilherme-santos/roomsync/internal/logging"
)

// environment is what every subcommand receives from main.
type environment struct {
	cfg *config.Config
	log zerolog.Logger
}

type runFunc func(_ context.Context, _ *environment, args []string) error

var commands = []struct {
	Name        string
	Description string
	Run         runFunc
}{
	{ShowCommand.Name, ShowCommand.Description, ShowCommand.Run},
	{PublishCommand.Name, PublishCommand.Description, PublishCommand.Run},
	{HistoryCommand.Name, HistoryCommand.Description, HistoryCommand.Run},
	{GoogleLoginCommand.Name, GoogleLoginCommand.Description, GoogleLoginCommand.Run},
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	var (
		configPath string
		provider   string
		verbose    bool
	)
	flag.StringVar(&configPath, "config", "", "YAML configuration file")
	flag.StringVar(&provider, "provider", "", "calendar provider: ews, google or caldav")
	flag.BoolVar(&verbose, "verbose", false, "log debug messages")
	flag.Usage = usage
	flag.Parse()

	log := logging.New(os.Stderr, "roomsync", verbose)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var run runFunc
	for _, c := range commands {
		if c.Name == args[0] {
			run = c.Run
		}
	}
	if run == nil {
		fmt.Fprintf(flag.CommandLine.Output(), "Unknown command %q\n\n", args[0])
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configPath, os.LookupEnv)
	if err != nil {
		log.Error().Err(err).Msg("Unable to load configuration")
		os.Exit(1)
	}
	if provider != "" {
		cfg.Provider = provider
	}

	err = run(ctx, &environment{cfg: cfg, log: log}, args[1:])
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Str("command", args[0]).Msg("Command failed")
		os.Exit(1)
	}
}

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "Usage: %s [options] <command> [command options]\n", os.Args[0])
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-14s %s\n", c.Name, c.Description)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	flag.PrintDefaults()
}
