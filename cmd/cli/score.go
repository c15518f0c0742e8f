package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	domain "github.com/Comfie/ignaCheckApi-sub000/internal/domain/compliance"
)

func newScoreCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute the weighted compliance score of a finding list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			in, err := readFindings(f)
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			return writeResult(cmd.OutOrStdout(), map[string]any{
				"overallScore": domain.Score(in),
				"findings":     len(in),
			})
		},
	}
	cmd.Flags().StringVar(&path, "findings", "", "JSON file: an array of {status, riskLevel, isMandatory} or a BatchResult")
	_ = cmd.MarkFlagRequired("findings")
	return cmd
}

// readFindings accepts a bare finding array or a BatchResult with results.
func readFindings(r io.Reader) ([]domain.ScoreInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	type raw struct {
		Status      string `json:"status"`
		RiskLevel   string `json:"riskLevel"`
		IsMandatory bool   `json:"isMandatory"`
	}
	var list []raw
	if err := json.Unmarshal(data, &list); err != nil {
		var batch struct {
			Results []raw `json:"results"`
		}
		if berr := json.Unmarshal(data, &batch); berr != nil {
			return nil, err
		}
		list = batch.Results
	}
	out := make([]domain.ScoreInput, 0, len(list))
	for _, f := range list {
		out = append(out, domain.ParseScoreInput(f.Status, f.RiskLevel, f.IsMandatory))
	}
	return out, nil
}
