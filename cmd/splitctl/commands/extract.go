package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mmynk/splitit/internal/config"
	"github.com/mmynk/splitit/internal/extraction"
)

// extract -i receipt.jpg: run receipt extraction once and print the result
// as a bill file ready for allocate.
func extractCmd() *cobra.Command {
	var imagePath string
	cmd := &cobra.Command{
		Use:   "extract -i receipt.jpg",
		Short: "Extract a receipt image into a bill file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.GeminiAPIKey == "" {
				return fmt.Errorf("SPLITIT_GEMINI_API_KEY is not set")
			}

			image, err := os.ReadFile(imagePath)
			if err != nil {
				return err
			}

			extractor := extraction.NewGeminiExtractor(extraction.GeminiConfig{
				APIKey:  cfg.GeminiAPIKey,
				Model:   cfg.GeminiModel,
				BaseURL: cfg.GeminiBaseURL,
				Timeout: cfg.ExtractionTimeout,
			})
			receipt, err := extractor.Extract(cmd.Context(), image)
			if err != nil {
				return err
			}

			for _, w := range receipt.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(billFileFromReceipt(receipt)); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "receipt image (JPEG or PNG)")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}
