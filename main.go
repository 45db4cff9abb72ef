package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/alecthomas/kong"
	"github.com/golang/glog"

	"github.com/youngoldiamond/lifetracker/internal/api"
	"github.com/youngoldiamond/lifetracker/internal/auth"
	"github.com/youngoldiamond/lifetracker/internal/notify"
	"github.com/youngoldiamond/lifetracker/internal/store"
)

var cli struct {
	Addr      string        `help:"Listen address." default:"localhost:8080" env:"LIFETRACKER_ADDR"`
	Store     string        `help:"Store backend: memory, sqlite, postgres, mongo." default:"sqlite" env:"LIFETRACKER_STORE"`
	DSN       string        `help:"Store DSN: sqlite file path, lib/pq conninfo, or mongodb:// URI." default:"lifetracker.db" env:"LIFETRACKER_DSN"`
	MongoDB   string        `help:"Mongo database name." default:"lifetracker" env:"LIFETRACKER_MONGO_DB"`
	Secret    string        `help:"JWT signing secret." env:"LIFETRACKER_SECRET"`
	TokenTTL  time.Duration `help:"Issued token lifetime." default:"24h" env:"LIFETRACKER_TOKEN_TTL"`
	Verbosity int           `help:"glog -v level." default:"0"`
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cli.Store {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return store.OpenSQL("sqlite", cli.DSN)
	case "postgres":
		return store.OpenSQL("postgres", cli.DSN)
	case "mongo":
		return store.OpenMongo(ctx, cli.DSN, cli.MongoDB)
	}
	return nil, fmt.Errorf("unknown store backend %q", cli.Store)
}

func main() {
	kctx := kong.Parse(&cli)

	// kong owns the CLI; glog just needs its flag values and a parsed
	// default flag set so it stops complaining.
	flag.Set("logtostderr", "true")
	flag.Set("v", fmt.Sprint(cli.Verbosity))
	flag.CommandLine.Parse(nil)
	defer glog.Flush()

	ctx := context.Background()

	st, err := openStore(ctx)
	kctx.FatalIfErrorf(err)
	defer st.Close()

	authConfig := auth.DefaultConfig()
	authConfig.ExpirationTime = cli.TokenTTL
	if cli.Secret != "" {
		authConfig.SecretKey = []byte(cli.Secret)
	}

	hub := notify.NewHub()
	server := api.NewServer(st, auth.New(authConfig, st), hub)

	glog.Infof("[main] listening on %s, store=%s", cli.Addr, cli.Store)
	kctx.FatalIfErrorf(server.Router().Run(cli.Addr))
}
