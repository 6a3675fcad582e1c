package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/guilherme-santos/roomsync"
)

type Strings []string

func (i *Strings) String() string {
	return strings.Join(*i, ", ")
}

func (i *Strings) Set(value string) error {
	*i = append(*i, value)
	return nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		w := fs.Output()
		fmt.Fprintf(w, "Usage of %s %s:\n", os.Args[0], fs.Name())
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Options:\n")
		fs.PrintDefaults()
	}
	return fs
}

// accountFlags binds the credential flags shared by show and publish. The
// configuration supplies the defaults.
type accountFlags struct {
	EmailAddress string
	Username     string
	Password     string
}

func (a *accountFlags) register(fs *flag.FlagSet, env *environment) {
	fs.StringVar(&a.EmailAddress, "email-address", env.cfg.EmailAddress, "e-mail address of the account reading the calendars")
	fs.StringVar(&a.Username, "username", env.cfg.Username, `login name, e.g. DOMAIN\user`)
	fs.StringVar(&a.Password, "password", env.cfg.Password, "password, env:NAME or pass:KEY")
}

// parseFlags treats -h as success and reports other parse errors as
// configuration errors.
func parseFlags(fs *flag.FlagSet, args []string) (help bool, err error) {
	err = fs.Parse(args)
	switch {
	case errors.Is(err, flag.ErrHelp):
		return true, nil
	case err != nil:
		return false, fmt.Errorf("%w: %v", roomsync.ErrConfig, err)
	case fs.NArg() > 0:
		return false, fmt.Errorf("%w: unexpected arguments %v", roomsync.ErrConfig, fs.Args())
	}
	return false, nil
}
