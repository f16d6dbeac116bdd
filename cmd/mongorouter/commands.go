package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"mongorouter/connectors/base"
	"mongorouter/connectors/config"
	"mongorouter/connectors/mongodb"
	"mongorouter/router"
	"mongorouter/router/api"
	"mongorouter/shared/logger"
)

type configResolver func() (string, error)

// validateCmd returns the command that checks a configuration file.
func validateCmd(configPath configResolver) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a router configuration file",
		Long: `Load a configuration file, check every cluster entry and compile every
dbpath pattern. No connection is made.

Examples:
  mongorouter validate --config /etc/mongorouter.yaml
  MONGOROUTER_CONFIG=router.yaml mongorouter validate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			r, err := router.NewFromFile(path, router.Options{Logger: logger.Discard()})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: OK (%d clusters, timeout %v)\n", path, len(r.Clusters()), r.Timeout())
			for i, c := range r.Clusters() {
				fmt.Fprintf(out, "  %d. %-16s %-11s %s  %s\n", i+1, c.Label, c.Kind(), hostsOf(c.Hosts, c.Port), c.Pattern)
			}
			return nil
		},
	}
}

// routeCmd returns the command that reports which cluster serves each name.
func routeCmd(configPath configResolver) *cobra.Command {
	return &cobra.Command{
		Use:   "route <database>...",
		Short: "Show the cluster each database name resolves to",
		Long: `Match each database name against the configured clusters in order and
print the first cluster that serves it. No connection is made.

Examples:
  mongorouter route users orders_2024 --config router.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			r, err := router.NewFromFile(path, router.Options{Logger: logger.Discard()})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			misses := 0
			for _, name := range args {
				c, err := r.Route(name)
				if errors.Is(err, base.ErrNoSuchDatabase) {
					misses++
					fmt.Fprintf(out, "%s -> (no match)\n", name)
					continue
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s -> %s (%s %s)\n", name, c.Label, c.Kind(), hostsOf(c.Hosts, c.Port))
			}
			if misses > 0 {
				return fmt.Errorf("%d of %d names matched no cluster", misses, len(args))
			}
			return nil
		},
	}
}

// serveCmd returns the command that runs the admin HTTP API.
func serveCmd(configPath configResolver) *cobra.Command {
	var listen string
	var timeout time.Duration
	var journal bool
	var verify bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP API",
		Long: `Build a router from the configuration file and serve the admin API:
cluster and route inspection, per-database ping, timeout changes and
Prometheus metrics on /prometheus.

Examples:
  mongorouter serve --config router.yaml --listen :8090
  mongorouter serve --config router.yaml --timeout 5s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}

			log := logger.New("mongorouter")
			opts := router.Options{
				Timeout: timeout,
				Journal: journal,
				Logger:  log.Named("router"),
				Metrics: router.NewMetrics(prometheus.DefaultRegisterer),
			}
			if verify {
				simple := mongodb.NewSimpleClientFactory()
				simple.VerifyConnection = true
				rs := mongodb.NewReplicaSetClientFactory()
				rs.VerifyConnection = true
				opts.ClientFactory, opts.ReplicaSetClientFactory = simple, rs
			}

			r, err := router.NewFromFile(path, opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := api.NewServer(r, api.Options{Logger: log.Named("admin-api")})
			serveErr := server.ListenAndServe(ctx, listen)

			closeCtx, cancel := context.WithTimeout(context.Background(), api.ShutdownTimeout)
			defer cancel()
			if err := r.Close(closeCtx); err != nil {
				log.ErrorWithErr("Errors closing clients", err, nil)
			}
			return serveErr
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", ":8090", "Address for the admin API")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Socket timeout for every client (overrides timeout_ms)")
	cmd.Flags().BoolVar(&journal, "journal", false, "Request journal acknowledgment on writes")
	cmd.Flags().BoolVar(&verify, "verify", false, "Ping each cluster when its client is first built")

	return cmd
}

// exampleCmd returns the command that prints an example configuration.
func exampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "example",
		Short: "Print an example configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), config.ExampleConfigFile())
			return err
		},
	}
}

func hostsOf(hosts []string, port int) string {
	pairs := make([]string, 0, len(hosts))
	for _, h := range hosts {
		pairs = append(pairs, base.JoinHostPort(h, port))
	}
	return strings.Join(pairs, ",")
}
