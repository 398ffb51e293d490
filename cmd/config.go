package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long:  "Prints the merged result of config.yaml, STORYSCOUT_* environment overrides, and built-in defaults. Secrets are redacted.",
	RunE: func(_ *cobra.Command, _ []string) error {
		c := *cfg
		if c.OpenRouter.Key != "" {
			c.OpenRouter.Key = "[redacted]"
		}
		if c.OCR.MistralKey != "" {
			c.OCR.MistralKey = "[redacted]"
		}

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(&c); err != nil {
			return eris.Wrap(err, "config: encode yaml")
		}
		return enc.Close()
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
