package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpserver "github.com/stockrun/stockrun/internal/interfaces/http"
)

// redisHealth adapts the durable cache tier to the health endpoint.
type redisHealth struct {
	ping func(ctx context.Context) error
}

func (r redisHealth) Name() string                     { return "redis" }
func (r redisHealth) Healthy(ctx context.Context) error { return r.ping(ctx) }

type postgresHealth struct {
	ping func(ctx context.Context) error
}

func (p postgresHealth) Name() string                     { return "postgres" }
func (p postgresHealth) Healthy(ctx context.Context) error { return p.ping(ctx) }

func runMonitor(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")

	a, err := buildApp(configPath, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	serverCfg := httpserver.DefaultServerConfig()
	serverCfg.Host = host
	serverCfg.Port = port
	if a.cfg.Server.ReadTimeout > 0 {
		serverCfg.ReadTimeout = a.cfg.Server.ReadTimeout
	}
	if a.cfg.Server.WriteTimeout > 0 {
		serverCfg.WriteTimeout = a.cfg.Server.WriteTimeout
	}

	var checkers []httpserver.HealthChecker
	if a.redis != nil {
		checkers = append(checkers, redisHealth{ping: a.redis.Ping})
	}
	if a.db != nil {
		checkers = append(checkers, postgresHealth{ping: a.db.PingContext})
	}

	server := httpserver.NewServer(serverCfg, a.pipeline.Bus(), checkers...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("shutting down monitoring server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
