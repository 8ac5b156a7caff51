package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/quorum/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Quorum configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/quorum/config.yaml
Project-specific overrides can be placed in .quorum.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

func configValues(cfg *config.Config) map[string]string {
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}
	jwtDisplay := "(not set)"
	if cfg.Server.JWTSecret != "" {
		jwtDisplay = "****"
	}
	return map[string]string{
		"anthropic.api_key":          apiKeyDisplay,
		"anthropic.model":            cfg.Anthropic.Model,
		"anthropic.use_bedrock":      strconv.FormatBool(cfg.Anthropic.UseBedrock),
		"router.max_retries":         strconv.Itoa(cfg.Router.MaxRetries),
		"router.retry_base_delay":    cfg.Router.RetryBaseDelay.String(),
		"scaling.high_watermark":     strconv.FormatFloat(cfg.Scaling.HighWatermark, 'g', -1, 64),
		"scaling.low_watermark":      strconv.FormatFloat(cfg.Scaling.LowWatermark, 'g', -1, 64),
		"bridge.protocol_version":    cfg.Bridge.ProtocolVersion,
		"alerting.rules_file":        cfg.Alerting.RulesFile,
		"alerting.eval_interval":     cfg.Alerting.EvalInterval.String(),
		"server.addr":                cfg.Server.Addr,
		"server.jwt_secret":          jwtDisplay,
		"state.db_path":              cfg.State.DBPath,
	}
}

var configKeyOrder = []string{
	"anthropic.api_key",
	"anthropic.model",
	"anthropic.use_bedrock",
	"router.max_retries",
	"router.retry_base_delay",
	"scaling.high_watermark",
	"scaling.low_watermark",
	"bridge.protocol_version",
	"alerting.rules_file",
	"alerting.eval_interval",
	"server.addr",
	"server.jwt_secret",
	"state.db_path",
}

func displayAllConfig(cfg *config.Config) {
	values := configValues(cfg)
	for _, key := range configKeyOrder {
		fmt.Printf("%s: %s\n", key, values[key])
	}
}

func displayConfigKey(cfg *config.Config, key string) {
	values := configValues(cfg)
	value, ok := values[key]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown config key: %s\n", key)
		os.Exit(1)
	}
	fmt.Println(value)
}

func setConfigKey(cfg *config.Config, key, value string) {
	var err error
	switch key {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_bedrock":
		cfg.Anthropic.UseBedrock, err = strconv.ParseBool(value)
	case "router.max_retries":
		cfg.Router.MaxRetries, err = strconv.Atoi(value)
	case "bridge.protocol_version":
		cfg.Bridge.ProtocolVersion = value
	case "alerting.rules_file":
		cfg.Alerting.RulesFile = value
	case "server.addr":
		cfg.Server.Addr = value
	case "state.db_path":
		cfg.State.DBPath = value
	default:
		fmt.Fprintf(os.Stderr, "Config key %s cannot be set from the CLI\n", key)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid value for %s: %v\n", key, err)
		os.Exit(1)
	}
	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Set %s\n", key)
}
