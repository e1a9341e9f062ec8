package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerline/statement-engine/internal/codecache"
	"github.com/ledgerline/statement-engine/internal/codecache/inmemory"
	"github.com/ledgerline/statement-engine/internal/llm"
	"github.com/ledgerline/statement-engine/internal/sandbox"
	"github.com/ledgerline/statement-engine/internal/validate"
)

const docText = "15-01-2024|AMAZON.COM*123|1999.00|credit\n16-01-2024|ATM WITHDRAWAL|500.00|debit"

// goodCode parses every pipe-separated line of the document.
const goodCode = `
var out = [];
var lines = text.split("\n");
for (var i = 0; i < lines.length; i++) {
	var p = lines[i].split("|");
	if (p.length < 4) continue;
	out.push({date: p[0], description: p[1], amount: parseFloat(p[2]), type: p[3]});
}
return out;`

// firstRowCode parses only the first line.
const firstRowCode = `
var p = text.split("\n")[0].split("|");
return [{date: p[0], description: p[1], amount: parseFloat(p[2]), type: p[3]}];`

const throwingCode = `throw new Error("column 7 is out of range");`

// scriptedModel replies from a queue, repeating the last entry once the queue
// runs out, and mirrors the production JSON cleaning.
type scriptedModel struct {
	replies []string
	calls   []string
}

func (m *scriptedModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("not used")
}

func (m *scriptedModel) GenerateJSON(ctx context.Context, prompt string, out any) error {
	m.calls = append(m.calls, prompt)
	i := len(m.calls) - 1
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	return json.Unmarshal([]byte(llm.CleanJSON(m.replies[i])), out)
}

func replyWith(t *testing.T, code string) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"code":           code,
		"detectedFormat": "pipe-separated",
		"dateFormat":     "DD-MM-YYYY",
		"confidence":     0.9,
	})
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func newAgent(model llm.Model, cache *codecache.Cache, opts ...Option) *Agent {
	exec := sandbox.NewExecutor(sandbox.Capabilities{ParseHelpers: true, Timeout: 5 * time.Second})
	return New(cache, exec, model, zerolog.Nop(), opts...)
}

func seedVersion(t *testing.T, cache *codecache.Cache, sourceKey, code string) *codecache.Version {
	t.Helper()
	v, err := cache.Append(context.Background(), codecache.Version{SourceKey: sourceKey, Code: code})
	if err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	return v
}

func TestParse_CacheNewestFirstWithOutcomes(t *testing.T) {
	ctx := context.Background()
	cache := codecache.New(inmemory.NewStore())
	seedVersion(t, cache, "hdfc:pdf", goodCode)     // v1
	seedVersion(t, cache, "hdfc:pdf", throwingCode) // v2, tried first

	model := &scriptedModel{}
	res, err := newAgent(model, cache).Parse(ctx, Document{SourceKey: "hdfc:pdf", Text: docText}, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if !res.FromCache {
		t.Error("FromCache = false, want true")
	}
	if res.Version == nil || res.Version.Version != 1 {
		t.Fatalf("accepted version = %+v, want version 1", res.Version)
	}
	if len(res.Transactions) != 2 {
		t.Errorf("got %d transactions, want 2", len(res.Transactions))
	}
	if len(model.calls) != 0 {
		t.Errorf("model called %d times despite a cache hit", len(model.calls))
	}

	versions, err := cache.Versions(ctx, "hdfc:pdf")
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	// Newest first: versions[0] is v2 (the rejected one).
	if versions[0].FailCount != 1 || versions[0].SuccessCount != 0 {
		t.Errorf("v2 counters = %d/%d, want 0/1 after rejection", versions[0].SuccessCount, versions[0].FailCount)
	}
	if versions[1].SuccessCount != 1 || versions[1].FailCount != 0 {
		t.Errorf("v1 counters = %d/%d, want 1/0 after acceptance", versions[1].SuccessCount, versions[1].FailCount)
	}
}

func TestParse_EmptyCacheGenerates(t *testing.T) {
	ctx := context.Background()
	cache := codecache.New(inmemory.NewStore())
	model := &scriptedModel{replies: []string{replyWith(t, goodCode)}}

	res, err := newAgent(model, cache).Parse(ctx, Document{SourceKey: "icici:pdf", Text: docText}, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if res.FromCache {
		t.Error("FromCache = true for a generated parse")
	}
	if res.StepsUsed != 1 {
		t.Errorf("StepsUsed = %d, want 1", res.StepsUsed)
	}
	if res.Kind != RowsTransactions {
		t.Errorf("Kind = %s, want transactions", res.Kind)
	}
	if res.Version == nil || res.Version.Version != 1 {
		t.Fatalf("Version = %+v, want freshly appended version 1", res.Version)
	}
	if res.Version.DetectedFormat != "pipe-separated" || res.Version.DateFormat != "DD-MM-YYYY" {
		t.Errorf("version metadata not carried from the reply: %+v", res.Version)
	}

	versions, _ := cache.Versions(ctx, "icici:pdf")
	if len(versions) != 1 {
		t.Fatalf("cache holds %d versions, want 1", len(versions))
	}
}

func TestParse_RepairLoopFeedsErrorBack(t *testing.T) {
	ctx := context.Background()
	cache := codecache.New(inmemory.NewStore())
	model := &scriptedModel{replies: []string{
		replyWith(t, throwingCode),
		replyWith(t, goodCode),
	}}

	res, err := newAgent(model, cache).Parse(ctx, Document{SourceKey: "sbi:pdf", Text: docText}, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.StepsUsed != 2 {
		t.Errorf("StepsUsed = %d, want 2", res.StepsUsed)
	}
	if len(model.calls) != 2 {
		t.Fatalf("model called %d times, want 2", len(model.calls))
	}

	if strings.Contains(model.calls[0], "column 7 is out of range") {
		t.Error("first prompt already carries an error")
	}
	// The second prompt must carry both the failing code and its error.
	if !strings.Contains(model.calls[1], "column 7 is out of range") {
		t.Error("second prompt does not carry the previous error")
	}
	if !strings.Contains(model.calls[1], "throw new Error") {
		t.Error("second prompt does not carry the previous code")
	}
}

func TestParse_BadJSONReplyIsRepairable(t *testing.T) {
	ctx := context.Background()
	cache := codecache.New(inmemory.NewStore())
	model := &scriptedModel{replies: []string{
		"I'd be happy to help! Which format would you like?",
		replyWith(t, goodCode),
	}}

	res, err := newAgent(model, cache).Parse(ctx, Document{SourceKey: "axis:pdf", Text: docText}, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.StepsUsed != 2 {
		t.Errorf("StepsUsed = %d, want 2", res.StepsUsed)
	}
	if !strings.Contains(model.calls[1], "not valid JSON") {
		t.Error("second prompt does not mention the malformed reply")
	}
}

func TestParse_BudgetExhaustion(t *testing.T) {
	ctx := context.Background()
	cache := codecache.New(inmemory.NewStore())
	model := &scriptedModel{replies: []string{replyWith(t, throwingCode)}}

	_, err := newAgent(model, cache, WithStepBudget(3)).
		Parse(ctx, Document{SourceKey: "kotak:pdf", Text: docText}, nil)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
	if len(model.calls) != 3 {
		t.Errorf("model called %d times, want exactly the budget of 3", len(model.calls))
	}
	if !strings.Contains(err.Error(), "column 7 is out of range") {
		t.Errorf("error %q does not carry the last failure", err)
	}

	if versions, _ := cache.Versions(ctx, "kotak:pdf"); len(versions) != 0 {
		t.Errorf("cache holds %d versions after exhaustion, want 0", len(versions))
	}
}

func TestParse_ZeroRowsIsAFailure(t *testing.T) {
	ctx := context.Background()
	cache := codecache.New(inmemory.NewStore())
	model := &scriptedModel{replies: []string{
		replyWith(t, "return [];"),
		replyWith(t, goodCode),
	}}

	res, err := newAgent(model, cache).Parse(ctx, Document{SourceKey: "idfc:pdf", Text: docText}, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.StepsUsed != 2 {
		t.Errorf("StepsUsed = %d, want 2 (empty output must not be accepted)", res.StepsUsed)
	}
	if !strings.Contains(model.calls[1], "zero rows") {
		t.Error("second prompt does not mention the empty output")
	}
}

func TestParse_ValidationRejectsCachedVersion(t *testing.T) {
	ctx := context.Background()
	cache := codecache.New(inmemory.NewStore())
	seedVersion(t, cache, "hsbc:pdf", firstRowCode) // extracts 1 of 2 rows

	count := 2
	expected := &validate.ExpectedSummary{Count: &count}
	model := &scriptedModel{replies: []string{replyWith(t, goodCode)}}

	res, err := newAgent(model, cache).Parse(ctx, Document{SourceKey: "hsbc:pdf", Text: docText}, expected)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if res.FromCache {
		t.Error("undercounting cached version accepted")
	}
	if len(res.Transactions) != 2 {
		t.Errorf("got %d transactions, want 2", len(res.Transactions))
	}
	if res.Version == nil || res.Version.Version != 2 {
		t.Errorf("Version = %+v, want newly appended version 2", res.Version)
	}

	versions, _ := cache.Versions(ctx, "hsbc:pdf")
	// versions[1] is the seeded v1 that failed validation.
	if versions[1].FailCount != 1 {
		t.Errorf("v1 FailCount = %d, want 1 (validation rejections are recorded)", versions[1].FailCount)
	}
}

func TestParse_HoldingsDocument(t *testing.T) {
	ctx := context.Background()
	cache := codecache.New(inmemory.NewStore())
	holdingsCode := `
var out = [];
var lines = text.split("\n");
for (var i = 0; i < lines.length; i++) {
	var p = lines[i].split("|");
	if (p.length < 3) continue;
	out.push({name: p[0], investedValue: parseFloat(p[1]), currentValue: parseFloat(p[2])});
}
return out;`
	model := &scriptedModel{replies: []string{replyWith(t, holdingsCode)}}

	doc := Document{SourceKey: "zerodha:sheet", Text: "Fund A|10000.50|12000.75\nFund B|5000.00|4800.25"}
	res, err := newAgent(model, cache).Parse(ctx, doc, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if res.Kind != RowsHoldings {
		t.Fatalf("Kind = %s, want holdings", res.Kind)
	}
	if len(res.Holdings) != 2 {
		t.Fatalf("got %d holdings, want 2", len(res.Holdings))
	}
	if res.Holdings[0].Name != "Fund A" {
		t.Errorf("holding name = %q", res.Holdings[0].Name)
	}
	if res.Holdings[0].CurrentValue == nil || *res.Holdings[0].CurrentValue != 12000.75 {
		t.Errorf("currentValue = %v, want 12000.75", res.Holdings[0].CurrentValue)
	}
}
