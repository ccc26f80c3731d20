package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/hravel/huddl/internal/client"
	"github.com/hravel/huddl/internal/config"
	"github.com/hravel/huddl/internal/session"
	"github.com/hravel/huddl/internal/tui"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profile := session.Resolve(*profileFlag)
	if err := session.ValidateName(profile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		client.Module(client.Params{Profile: profile, Config: cfg}),
		fx.Invoke(registerTUI(profile)),
	)

	app.Run()
}

// registerTUI attaches the terminal frontend to the engine lifecycle. When
// the user quits the UI, the whole app shuts down.
func registerTUI(profile string) func(fx.Lifecycle, *client.Client, fx.Shutdowner) {
	return func(lc fx.Lifecycle, engine *client.Client, shutdowner fx.Shutdowner) {
		app := tui.NewApp(engine, profile)
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := app.Run(); err != nil {
						fmt.Fprintf(os.Stderr, "ui error: %v\n", err)
					}
					_ = shutdowner.Shutdown()
				}()
				return nil
			},
			OnStop: func(context.Context) error {
				app.Stop()
				return nil
			},
		})
	}
}
