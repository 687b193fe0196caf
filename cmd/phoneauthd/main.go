// Command phoneauthd serves the phone authentication engine over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "phoneauthd: %v\n", err)
		os.Exit(1)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "phoneauthd: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	if err := a.run(ctx); err != nil {
		a.log.Error().Err(err).Msg("server stopped")
		a.close()
		os.Exit(1)
	}
}
