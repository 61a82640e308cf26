package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redink/outliner/internal/config"
)

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFile(configPath())
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return fmt.Errorf("no config found. Run 'outliner setup' first")
		}
		return err
	}

	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = maskKey(cfg.Providers[i].APIKey)
	}
	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(ioOut, "Config file: %s\n\n", configPath())
	_, _ = fmt.Fprint(ioOut, string(data))
	return nil
}

func maskKey(key string) string {
	if len(key) <= 8 {
		if key == "" {
			return ""
		}
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
