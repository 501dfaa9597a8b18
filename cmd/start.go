package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/squidstack/squidflags/pkg/auth"
	"github.com/squidstack/squidflags/pkg/provider"
	"github.com/squidstack/squidflags/pkg/runtime"
	"github.com/squidstack/squidflags/pkg/service"
	"github.com/squidstack/squidflags/pkg/storage"
)

func findProvider(name string) (provider.IProvider, error) {
	registeredProviders := map[string]func() provider.IProvider{
		"file": func() provider.IProvider { return provider.NewFilePathProvider() },
		"http": func() provider.IProvider { return provider.NewHTTPProvider(viper.GetString("flags.url")) },
	}
	build, ok := registeredProviders[name]
	if !ok {
		return nil, fmt.Errorf("unknown flag provider %q", name)
	}
	log.Debugf("Using %s flag provider", name)
	return build(), nil
}

func findStorage(ctx context.Context, name string) (storage.Backend, error) {
	switch name {
	case "memory":
		return storage.NewMemory(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: viper.GetString("session.redis-addr")})
		if err := client.Ping(ctx).Err(); err != nil {
			// the backend is best-effort; keep going and let reads fail soft
			log.Warnf("redis session backend unreachable: %v", err)
		}
		return storage.NewRedis(client), nil
	case "sqlite":
		return storage.OpenSQLite(ctx, viper.GetString("session.sqlite-path"))
	}
	return nil, fmt.Errorf("unknown session backend %q", name)
}

func corsOrigins() []string {
	var origins []string
	for _, o := range viper.GetStringSlice("http.cors-origins") {
		for _, part := range strings.Split(o, ",") {
			if part = strings.TrimSpace(part); part != "" {
				origins = append(origins, part)
			}
		}
	}
	return origins
}

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start squidflags",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		providerImpl, err := findProvider(viper.GetString("flags.provider"))
		if err != nil {
			return err
		}
		backend, err := findStorage(ctx, viper.GetString("session.backend"))
		if err != nil {
			return err
		}

		rt := &runtime.Runtime{
			FlagKey:         viper.GetString("flags.key"),
			RefreshInterval: viper.GetDuration("flags.refresh-interval"),
			StorageTimeout:  viper.GetDuration("session.timeout"),
			Provider:        providerImpl,
			Backend:         backend,
			Authenticator:   auth.NewClient(viper.GetString("auth.url")),
			ServiceConfiguration: &service.HTTPServiceConfiguration{
				Port:        viper.GetInt32("http.port"),
				CORSOrigins: corsOrigins(),
			},
		}

		return rt.Start(ctx)
	},
}

func init() {
	flags := startCmd.Flags()
	flags.Duration("refresh-interval", 0, "Interval between flag refreshes, 0 disables")
	flags.String("session-backend", "memory", "Session storage e.g. memory, redis or sqlite")
	flags.Duration("session-timeout", 2*time.Second, "Bound on each session storage call")
	flags.String("redis-addr", "localhost:6379", "Redis address for the redis session backend")
	flags.String("sqlite-path", "squidflags.db", "Database path for the sqlite session backend")
	flags.String("auth-url", "", "Base URL of the authentication service")
	flags.Int32P("port", "p", 8080, "Port to listen on")
	flags.StringSlice("cors-origins", nil, "Origins allowed to call the API")

	bind := map[string]string{
		"flags.refresh-interval": "refresh-interval",
		"session.backend":        "session-backend",
		"session.timeout":        "session-timeout",
		"session.redis-addr":     "redis-addr",
		"session.sqlite-path":    "sqlite-path",
		"auth.url":               "auth-url",
		"http.port":              "port",
		"http.cors-origins":      "cors-origins",
	}
	for key, flag := range bind {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(startCmd)
}
