package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newPlateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plate",
		Short: "License plate and text recognition",
	}
	cmd.AddCommand(newPlateReadCmd())
	cmd.AddCommand(newPlateReadTrOCRCmd())
	return cmd
}

func newPlateReadCmd() *cobra.Command {
	var noContrast bool

	cmd := &cobra.Command{
		Use:   "read <image>",
		Short: "Recognize a Brazilian plate (ABC-1234 or ABC1D23)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			path := "/api/ocr_placa/"
			if noContrast {
				path += "?enhance_contrast=false"
			}
			data, err := NewAPIClient(cfg).Upload(path, args[0])
			if err != nil {
				return err
			}
			return printPlate(cmd, cfg, data)
		},
	}
	cmd.Flags().BoolVar(&noContrast, "no-contrast", false, "skip histogram equalization")
	return cmd
}

func newPlateReadTrOCRCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read-trocr <image>",
		Short: "Read text with the transformer OCR model (no plate validation)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := LoadConfig(cmd)
			data, err := NewAPIClient(cfg).Upload("/api/ocr_placa2/", args[0])
			if err != nil {
				return err
			}
			return printPlate(cmd, cfg, data)
		},
	}
}

func printPlate(cmd *cobra.Command, cfg *Config, data []byte) error {
	if cfg.Output == "json" {
		return printOutput(cmd.OutOrStdout(), cfg.Output, data)
	}
	var resp struct {
		Placa string `json:"placa"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Placa)
	return nil
}
