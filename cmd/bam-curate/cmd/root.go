package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/mfenderov/bam-curate/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	cfg     config.Config
)

// GetConfig returns the loaded configuration.
func GetConfig() config.Config {
	return cfg
}

var rootCmd = &cobra.Command{
	Use:   "bam-curate",
	Short: "BAM-Curate: HTML to deduplicated Markdown",
	Long: `BAM-Curate converts crawled HTML datasets into clean Markdown. Boilerplate
is stripped, pages are flattened to one line per block, and lines that
repeat their predecessor are removed. The default embedding backend compares
word overlap; set embeddings.backend to "remote" for sentence embeddings.

Commands:
  crawl    Crawl a site into a JSON dataset
  convert  Convert datasets into a single Markdown artifact
  serve    Start the MCP server with conversion tools`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func initLogger() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func initConfig() {
	// Start with defaults
	cfg = config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/bam-curate")
		viper.AddConfigPath(".")
	}

	// Environment variable overrides
	// BAMCURATE_PIPELINE_WORKERS -> pipeline.workers
	viper.SetEnvPrefix("BAMCURATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// AutomaticEnv only covers keys viper already knows about
	for _, key := range []string{
		"pipeline.chunk_size",
		"pipeline.workers",
		"pipeline.similarity_threshold",
		"embeddings.backend",
		"embeddings.socket_path",
		"embeddings.base_url",
		"embeddings.model",
		"embeddings.batch_size",
		"input.pattern",
		"input.s3_prefix",
		"output.path",
		"output.upload",
		"storage.endpoint",
		"storage.bucket",
		"storage.access_key_id",
		"storage.secret_access_key",
		"elasticsearch.enabled",
		"elasticsearch.index",
		"elasticsearch.username",
		"elasticsearch.password",
		"metrics.textfile_path",
		"mcp.name",
		"mcp.version",
		"crawler.max_pages",
		"crawler.max_depth",
		"crawler.delay",
	} {
		viper.BindEnv(key)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("config file error", "error", err)
		}
		// No config file - use defaults + env vars
	}

	// Unmarshal into struct (merges config file with defaults)
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Warn("failed to parse config", "error", err)
	}

	// Handle special case: addresses as comma-separated string from env
	if addrs := os.Getenv("BAMCURATE_ELASTICSEARCH_ADDRESSES"); addrs != "" {
		cfg.Elasticsearch.Addresses = strings.Split(addrs, ",")
	}
}
