package configgen

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ledgerline/statement-engine/internal/extract"
	"github.com/ledgerline/statement-engine/internal/infer"
	"github.com/ledgerline/statement-engine/internal/llm"
)

type scriptedModel struct {
	reply  string
	err    error
	prompt string
}

func (m *scriptedModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("not used")
}

func (m *scriptedModel) GenerateJSON(ctx context.Context, prompt string, out any) error {
	m.prompt = prompt
	if m.err != nil {
		return m.err
	}
	return json.Unmarshal([]byte(llm.CleanJSON(m.reply)), out)
}

var testHeaders = []string{"Date", "Description", "Amount"}

var testRows = [][]string{
	{"15-01-2024", "AMAZON", "1999.00 CR"},
	{"16-01-2024", "ATM", "500.00 DR"},
}

func testMeta() *infer.SheetMetadata {
	return infer.InferSheet(testHeaders, testRows)
}

func TestGenerate(t *testing.T) {
	model := &scriptedModel{reply: `{
		"dateColumn": 0,
		"descriptionColumn": 1,
		"amountColumn": 2,
		"headerRow": 0,
		"dataStartRow": 1,
		"dateFormat": "DD-MM-YYYY",
		"amountFormat": "single",
		"typeDetection": "sign"
	}`}

	cfg, err := Generate(context.Background(), model, testMeta(), testHeaders, testRows)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if cfg.DateColumn != 0 || cfg.DescriptionColumn != 1 {
		t.Errorf("column mapping = %+v", cfg)
	}
	if cfg.AmountColumn == nil || *cfg.AmountColumn != 2 {
		t.Errorf("AmountColumn = %v, want 2", cfg.AmountColumn)
	}
	if cfg.AmountFormat != extract.AmountSingle {
		t.Errorf("AmountFormat = %s, want single", cfg.AmountFormat)
	}

	// The prompt must carry the headers, the inferred metadata and sample rows.
	for _, want := range []string{"Date | Description | Amount", "dominantFormat", "AMAZON"} {
		if !strings.Contains(model.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerate_FencedReply(t *testing.T) {
	model := &scriptedModel{reply: "```json\n" + `{
		"dateColumn": 0,
		"descriptionColumn": 1,
		"creditColumn": 2,
		"debitColumn": 3,
		"headerRow": 0,
		"dataStartRow": 1,
		"dateFormat": "DD/MM/YYYY",
		"amountFormat": "split",
		"typeDetection": "split"
	}` + "\n```"}

	cfg, err := Generate(context.Background(), model, testMeta(), testHeaders, testRows)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if cfg.AmountFormat != extract.AmountSplit {
		t.Errorf("AmountFormat = %s, want split", cfg.AmountFormat)
	}
}

func TestGenerate_InvalidConfigRejected(t *testing.T) {
	// Structurally invalid: split without a debit column.
	model := &scriptedModel{reply: `{
		"dateColumn": 0,
		"descriptionColumn": 1,
		"creditColumn": 2,
		"headerRow": 0,
		"dataStartRow": 1,
		"amountFormat": "split",
		"typeDetection": "split"
	}`}

	if _, err := Generate(context.Background(), model, testMeta(), testHeaders, testRows); err == nil {
		t.Fatal("invalid config accepted")
	}
}

func TestGenerate_ModelErrorIsFatal(t *testing.T) {
	model := &scriptedModel{err: errors.New("quota exceeded")}
	if _, err := Generate(context.Background(), model, testMeta(), testHeaders, testRows); err == nil {
		t.Fatal("model failure did not fail generation")
	}
}
