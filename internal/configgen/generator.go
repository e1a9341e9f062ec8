// Package configgen asks the model to propose a declarative parser config for
// a spreadsheet whose column shapes have already been inferred.
package configgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ledgerline/statement-engine/internal/extract"
	"github.com/ledgerline/statement-engine/internal/infer"
	"github.com/ledgerline/statement-engine/internal/llm"
)

const maxSampleRows = 5

// Generate proposes a ParserConfig from sheet metadata plus a handful of
// sample rows. The reply is validated shape-wise only; whether the mapping is
// semantically right is the validation engine's problem downstream. A model
// failure is fatal for the parse attempt, there is no retry at this layer.
func Generate(ctx context.Context, model llm.Model, meta *infer.SheetMetadata, headers []string, rows [][]string) (*extract.ParserConfig, error) {
	prompt, err := buildPrompt(meta, headers, rows)
	if err != nil {
		return nil, err
	}

	var cfg extract.ParserConfig
	if err := model.GenerateJSON(ctx, prompt, &cfg); err != nil {
		return nil, fmt.Errorf("configgen: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configgen: model returned invalid config: %w", err)
	}
	return &cfg, nil
}

func buildPrompt(meta *infer.SheetMetadata, headers []string, rows [][]string) (string, error) {
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("configgen: marshal metadata: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are a bank statement structure analyst.\n\n")
	b.WriteString("Task: map the columns of the spreadsheet below onto transaction fields.\n")
	b.WriteString("Output STRICT JSON only (no comments, no markdown) with this shape:\n\n")
	b.WriteString(`{
  "dateColumn": <int>,
  "amountColumn": <int or omit>,
  "creditColumn": <int or omit>,
  "debitColumn": <int or omit>,
  "descriptionColumn": <int>,
  "typeColumn": <int or omit>,
  "balanceColumn": <int or omit>,
  "headerRow": <int>,
  "dataStartRow": <int>,
  "dateFormat": "<e.g. DD-MM-YYYY>",
  "amountFormat": "single" | "split",
  "typeDetection": "column" | "sign" | "split"
}` + "\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- If amounts are in one column use amountFormat \"single\" and set amountColumn; never set creditColumn/debitColumn.\n")
	b.WriteString("- If credits and debits are separate columns use amountFormat \"split\" and set both; never set amountColumn.\n")
	b.WriteString("- Column indices are zero-based positions in the header row.\n")
	b.WriteString("- dataStartRow is the zero-based index of the first transaction row.\n\n")

	b.WriteString("Headers: ")
	b.WriteString(strings.Join(headers, " | "))
	b.WriteString("\n\nColumn metadata:\n")
	b.Write(metaJSON)
	b.WriteString("\n\nSample rows:\n")
	for i, row := range rows {
		if i == maxSampleRows {
			break
		}
		b.WriteString(strings.Join(row, " | "))
		b.WriteString("\n")
	}
	return b.String(), nil
}
