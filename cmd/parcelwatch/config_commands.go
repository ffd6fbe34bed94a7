package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"parcelwatch/internal/config"
	"parcelwatch/internal/parcel"
	"parcelwatch/internal/tracker"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))

	return configCmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path:          %s (exists: %s)\n", path, yesNo(exists))
			fmt.Fprintf(out, "Database:             %s\n", cfg.DatabasePath())
			fmt.Fprintf(out, "Log directory:        %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "Gmail credentials:    %s\n", cfg.Gmail.CredentialsPath)
			fmt.Fprintf(out, "Gmail token:          %s\n", cfg.Gmail.TokenPath)
			fmt.Fprintf(out, "Search window:        %d days\n", cfg.Gmail.SinceDays)
			fmt.Fprintf(out, "Check interval:       %d minutes\n", cfg.Tracking.CheckIntervalMinutes)
			fmt.Fprintf(out, "Stale after:          %d minutes\n", cfg.Tracking.RefreshStaleMinutes)
			fmt.Fprintf(out, "Retry attempts:       %d\n", cfg.Tracking.RetryMaxAttempts)
			fmt.Fprintf(out, "Circuit threshold:    %d\n", cfg.Tracking.CircuitFailureThreshold)
			fmt.Fprintf(out, "UPS API key:          %s\n", yesNo(cfg.APIKeyFor("ups") != ""))
			fmt.Fprintf(out, "FedEx API key:        %s\n", yesNo(cfg.APIKeyFor("fedex") != ""))
			fmt.Fprintf(out, "USPS API key:         %s\n", yesNo(cfg.APIKeyFor("usps") != ""))
			fmt.Fprintf(out, "DHL API key:          %s\n", yesNo(cfg.APIKeyFor("dhl") != ""))
			fmt.Fprintf(out, "Supported couriers:   %s\n", supportedCouriers(cfg))
			return nil
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

// supportedCouriers lists the couriers whose configured keys yield a live
// API provider.
func supportedCouriers(cfg *config.Config) string {
	registry := tracker.NewRegistry(cfg, nil)
	supported := make([]string, 0, len(parcel.AllCouriers()))
	for _, courier := range parcel.AllCouriers() {
		if registry.Supported(courier) {
			supported = append(supported, string(courier))
		}
	}
	if len(supported) == 0 {
		return "none (no API keys configured)"
	}
	return strings.Join(supported, ", ")
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set gmail credentials_path and any courier API keys, then run `parcelwatch auth`.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}
