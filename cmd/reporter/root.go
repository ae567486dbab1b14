package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/reporter-client/internal/config"
	"github.com/Sternrassler/reporter-client/pkg/client"
	"github.com/Sternrassler/reporter-client/pkg/logging"
	"github.com/Sternrassler/reporter-client/pkg/pagination"
	"github.com/Sternrassler/reporter-client/pkg/reporter"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  zerolog.Logger
)

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"output":       "output",
	"log-level":    "log.level",
	"pretty":       "log.pretty",
	"endpoint":     "endpoint",
	"page-size":    "page_size",
	"min-interval": "min_interval",
	"redis-addr":   "redis.addr",
	"separator":    "separator",
	"max-level":    "max_level",
	"addr":         "server.addr",
}

var rootCmd = &cobra.Command{
	Use:   "reporter",
	Short: "Retrieve NIH RePORTER project searches as flat tables",
	Long: `reporter pages through the NIH RePORTER project search API and prints the
combined results as one flat table. Nested objects become dotted columns
(organization.org_name); arrays stay in a single cell.

Configuration is read from ./reporter.yaml (or --config), REPORTER_*
environment variables and flags, in increasing order of precedence.`,
	Version:       client.Version,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile, bindFlags(cmd))
		if err != nil {
			return err
		}
		if _, err := logging.Setup(c.Logging()); err != nil {
			return err
		}
		cfg = c
		logger = logging.NewLogger(logging.ComponentCLI)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./reporter.yaml)")
	pf.StringP("output", "o", "json", "output format: json, jsonl, csv or yaml")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.Bool("pretty", false, "human-readable logs on stderr")
	pf.String("endpoint", client.DefaultEndpoint, "project search URL")
	pf.Int("page-size", pagination.DefaultPageSize, "records per page request")
	pf.Duration("min-interval", client.DefaultConfig().MinInterval, "minimum spacing between requests")
	pf.String("redis-addr", "", "Redis address for a pacing slot shared across processes")
	pf.String("separator", ".", "separator joining nested column names")
	pf.Int("max-level", 0, "maximum nesting depth to flatten (0 = unlimited)")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// bindFlags binds only flags the user set, so unset flag defaults do not mask
// the config file or environment.
func bindFlags(cmd *cobra.Command) config.Binder {
	return func(v *viper.Viper) error {
		for name, key := range flagKeys {
			f := cmd.Flags().Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind --%s: %w", name, err)
			}
		}
		return nil
	}
}

// components holds what a retrieval needs; close releases it.
type components struct {
	redis    *redis.Client
	client   *client.Client
	reporter *reporter.Reporter
}

func newComponents(c *config.Config) (*components, error) {
	rdb := c.RedisClient()

	cl, err := client.New(c.ClientConfig(rdb))
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &components{
		redis:    rdb,
		client:   cl,
		reporter: reporter.New(pagination.NewRetriever(cl, c.RetrieverConfig())),
	}, nil
}

func (c *components) retriever() *pagination.Retriever {
	return c.reporter.Retriever()
}

func (c *components) close() {
	c.client.Close()
	if c.redis != nil {
		c.redis.Close()
	}
}
