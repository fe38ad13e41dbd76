package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/docopt/docopt-go"

	"github.com/jaredpereira/mud/server"
	"github.com/jaredpereira/mud/utils"
)

const usage = `mud space server.

One process hosts many collaboration spaces; each space gets its own store
under the data directory and is opened (and migrated) on first access.

Usage:
    mud serve [--listen=<addr>] [--data=<dir>] [--secret=<secret>] [--debug]

Options:
    -h --help            Show this screen.
    --listen=<addr>      Listen address [default: :8090].
    --data=<dir>         Data directory [default: ./data].
    --secret=<secret>    JWT signing secret; read from MUD_JWT_SECRET if unset.
    --debug              Debug logging.`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], "")
	if err != nil {
		panic(err)
	}
	if serve_, _ := opts.Bool("serve"); serve_ {
		serve(opts)
	}
}

func serve(opts docopt.Opts) {
	listen, _ := opts.String("--listen")
	dataDir, _ := opts.String("--data")

	secret := ""
	if s, err := opts.String("--secret"); err == nil {
		secret = s
	}
	if secret == "" {
		secret = os.Getenv("MUD_JWT_SECRET")
	}
	if secret == "" {
		fmt.Fprintln(os.Stderr, "no JWT secret; pass --secret or set MUD_JWT_SECRET")
		os.Exit(1)
	}

	level := slog.LevelInfo
	if debug, _ := opts.Bool("--debug"); debug {
		level = slog.LevelDebug
	}
	log := utils.NewDefaultLogger(level)

	registry := server.NewRegistry(dataDir, server.JWTIdentity{Secret: []byte(secret)}, log)
	defer registry.Close()

	api := server.NewAPI(registry, log)
	log.Info("listening", "addr", listen, "data", dataDir)
	if err := http.ListenAndServe(listen, api.Handler()); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
