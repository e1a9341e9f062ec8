package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerline/statement-engine/internal/agent"
	"github.com/ledgerline/statement-engine/internal/categorize"
	"github.com/ledgerline/statement-engine/internal/codecache"
	cachemem "github.com/ledgerline/statement-engine/internal/codecache/inmemory"
	"github.com/ledgerline/statement-engine/internal/domain"
	"github.com/ledgerline/statement-engine/internal/llm"
	"github.com/ledgerline/statement-engine/internal/pipeline"
	storemem "github.com/ledgerline/statement-engine/internal/pipeline/inmemory"
	"github.com/ledgerline/statement-engine/internal/sandbox"
)

const statementCSV = "Date,Description,Amount\n" +
	"15-01-2024,AMAZON.COM*123,1999.00 CR\n" +
	"16-01-2024,ATM WITHDRAWAL,500.00 DR\n"

var singleAmountConfig = `{
	"dateColumn": 0,
	"descriptionColumn": 1,
	"amountColumn": 2,
	"headerRow": 0,
	"dataStartRow": 1,
	"dateFormat": "DD-MM-YYYY",
	"amountFormat": "single",
	"typeDetection": "sign"
}`

// jsonModel serves scripted JSON replies through the production cleaning
// path, repeating the last reply once the script runs out.
type jsonModel struct {
	replies []string
	calls   int
}

func (m *jsonModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("not used")
}

func (m *jsonModel) GenerateJSON(ctx context.Context, prompt string, out any) error {
	i := m.calls
	m.calls++
	if i >= len(m.replies) {
		i = len(m.replies) - 1
	}
	return json.Unmarshal([]byte(llm.CleanJSON(m.replies[i])), out)
}

// nullModel answers every call with nothing: JSON replies leave the target
// zero-valued and text replies fail, pushing the categorizer to its local
// fallback.
type nullModel struct{}

func (nullModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("unavailable")
}

func (nullModel) GenerateJSON(ctx context.Context, prompt string, out any) error {
	return nil
}

type env struct {
	orch  *pipeline.Orchestrator
	store *storemem.Store
	cache *codecache.Cache
}

func newEnv(t *testing.T, cfgModel, agentModel llm.Model) *env {
	t.Helper()
	cache := codecache.New(cachemem.NewStore())
	exec := sandbox.NewExecutor(sandbox.Capabilities{ParseHelpers: true, Timeout: 5 * time.Second})
	ag := agent.New(cache, exec, agentModel, zerolog.Nop())
	store := storemem.NewStore()
	categorizer := categorize.New(nullModel{}, zerolog.Nop())
	orch := pipeline.New(cfgModel, nullModel{}, ag, cache, store, categorizer, zerolog.Nop())
	return &env{orch: orch, store: store, cache: cache}
}

func TestParseStatement_Spreadsheet(t *testing.T) {
	e := newEnv(t, &jsonModel{replies: []string{singleAmountConfig}}, nullModel{})

	res, err := e.orch.ParseStatement(context.Background(), pipeline.ParseRequest{
		StatementID: "stmt-1",
		FileName:    "statement.csv",
		Data:        []byte(statementCSV),
	})
	if err != nil {
		t.Fatalf("ParseStatement: %v", err)
	}

	if res.Status != pipeline.StatusCompleted {
		t.Errorf("Status = %s, want completed", res.Status)
	}
	if res.TransactionCount != 2 {
		t.Errorf("TransactionCount = %d, want 2", res.TransactionCount)
	}
	if res.PeriodStart != "2024-01-15" || res.PeriodEnd != "2024-01-16" {
		t.Errorf("period = %s..%s, want 2024-01-15..2024-01-16", res.PeriodStart, res.PeriodEnd)
	}

	stored := e.store.Transactions("stmt-1")
	if len(stored) != 2 {
		t.Fatalf("store holds %d rows, want 2", len(stored))
	}
	for _, tx := range stored {
		if tx.Hash == "" {
			t.Error("stored row has no content hash")
		}
		if tx.Category != "other" {
			t.Errorf("Category = %q, want local fallback other", tx.Category)
		}
	}
	if stored[0].Type != domain.TxCredit || stored[1].Type != domain.TxDebit {
		t.Errorf("types = %s/%s, want credit/debit from CR/DR suffixes", stored[0].Type, stored[1].Type)
	}
}

func TestParseStatement_ReparseInsertsNothing(t *testing.T) {
	e := newEnv(t, &jsonModel{replies: []string{singleAmountConfig}}, nullModel{})
	ctx := context.Background()

	for _, id := range []string{"stmt-1", "stmt-2"} {
		res, err := e.orch.ParseStatement(ctx, pipeline.ParseRequest{
			StatementID: id,
			FileName:    "statement.csv",
			Data:        []byte(statementCSV),
		})
		if err != nil {
			t.Fatalf("ParseStatement %s: %v", id, err)
		}
		if res.Status != pipeline.StatusCompleted {
			t.Fatalf("ParseStatement %s status = %s", id, res.Status)
		}
	}

	if n := len(e.store.Transactions("stmt-1")); n != 2 {
		t.Errorf("first statement holds %d rows, want 2", n)
	}
	if n := len(e.store.Transactions("stmt-2")); n != 0 {
		t.Errorf("re-uploaded statement inserted %d rows, want 0 (content-hash dedupe)", n)
	}
}

func TestParseStatement_DocumentPath(t *testing.T) {
	code := `
var out = [];
var lines = text.split("\n");
for (var i = 0; i < lines.length; i++) {
	var p = lines[i].split("|");
	if (p.length < 4) continue;
	out.push({date: p[0], description: p[1], amount: parseFloat(p[2]), type: p[3]});
}
return out;`
	reply, err := json.Marshal(map[string]any{
		"code": code, "detectedFormat": "bank", "dateFormat": "YYYY-MM-DD", "confidence": 0.9,
	})
	if err != nil {
		t.Fatal(err)
	}

	e := newEnv(t, nullModel{}, &jsonModel{replies: []string{string(reply)}})
	doc := "2024-01-15|AMAZON|1999.00|credit\n2024-01-16|ATM|500.00|debit"

	res, err := e.orch.ParseStatement(context.Background(), pipeline.ParseRequest{
		StatementID: "stmt-doc",
		FileName:    "statement.txt",
		Data:        []byte(doc),
		SourceHint:  "HDFC Bank",
	})
	if err != nil {
		t.Fatalf("ParseStatement: %v", err)
	}
	if res.Status != pipeline.StatusCompleted || res.TransactionCount != 2 {
		t.Errorf("result = %+v, want 2 completed transactions", res)
	}

	// The accepted code was cached under the institution's source key.
	versions, err := e.cache.Versions(context.Background(), "hdfc-bank:text")
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(versions) != 1 {
		t.Errorf("cache holds %d versions, want 1", len(versions))
	}
}

func TestParseStatement_EmptyDocument(t *testing.T) {
	e := newEnv(t, nullModel{}, nullModel{})
	res, err := e.orch.ParseStatement(context.Background(), pipeline.ParseRequest{
		StatementID: "stmt-empty",
		FileName:    "statement.txt",
		Data:        []byte("   \n  "),
	})
	if err == nil {
		t.Fatal("empty document parsed without error")
	}
	if res.Status != pipeline.StatusFailed {
		t.Errorf("Status = %s, want failed", res.Status)
	}
}

func TestParseStatement_NoRowsExtractedFails(t *testing.T) {
	// The config points the date at the description column, so every row is
	// skipped and the parse must fail rather than complete with zero rows.
	badConfig := strings.Replace(singleAmountConfig, `"dateColumn": 0`, `"dateColumn": 1`, 1)
	e := newEnv(t, &jsonModel{replies: []string{badConfig}}, nullModel{})

	res, err := e.orch.ParseStatement(context.Background(), pipeline.ParseRequest{
		StatementID: "stmt-bad",
		FileName:    "statement.csv",
		Data:        []byte(statementCSV),
	})
	if err == nil {
		t.Fatal("zero extracted rows did not fail the parse")
	}
	if res.Status != pipeline.StatusFailed {
		t.Errorf("Status = %s, want failed", res.Status)
	}
	if n := len(e.store.Transactions("stmt-bad")); n != 0 {
		t.Errorf("failed parse left %d rows behind", n)
	}
}

// failingStore rejects every upsert and records rollbacks.
type failingStore struct {
	deleted []string
}

func (s *failingStore) UpsertTransactions(ctx context.Context, statementID string, txs []pipeline.PersistedTransaction) (int, error) {
	return 0, errors.New("storage unavailable")
}

func (s *failingStore) UpsertHoldings(ctx context.Context, statementID string, holdings []domain.Holding) (int, error) {
	return 0, errors.New("storage unavailable")
}

func (s *failingStore) DeleteStatement(ctx context.Context, statementID string) error {
	s.deleted = append(s.deleted, statementID)
	return nil
}

func TestParseStatement_RollbackOnUpsertFailure(t *testing.T) {
	cache := codecache.New(cachemem.NewStore())
	exec := sandbox.NewExecutor(sandbox.Capabilities{ParseHelpers: true, Timeout: 5 * time.Second})
	ag := agent.New(cache, exec, nullModel{}, zerolog.Nop())
	store := &failingStore{}
	categorizer := categorize.New(nullModel{}, zerolog.Nop())
	orch := pipeline.New(&jsonModel{replies: []string{singleAmountConfig}}, nullModel{}, ag, cache, store, categorizer, zerolog.Nop())

	res, err := orch.ParseStatement(context.Background(), pipeline.ParseRequest{
		StatementID: "stmt-rb",
		FileName:    "statement.csv",
		Data:        []byte(statementCSV),
	})
	if err == nil {
		t.Fatal("upsert failure did not fail the parse")
	}
	if res.Status != pipeline.StatusFailed {
		t.Errorf("Status = %s, want failed", res.Status)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "stmt-rb" {
		t.Errorf("rollback deletions = %v, want [stmt-rb]", store.deleted)
	}
}

func TestCacheAdministration(t *testing.T) {
	e := newEnv(t, nullModel{}, nullModel{})
	ctx := context.Background()

	for _, code := range []string{"return [{date: '2024-01-15'}];", "return [];"} {
		if _, err := e.cache.Append(ctx, codecache.Version{SourceKey: "hdfc-bank:pdf", Code: code}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	sources, err := e.orch.ListCachedSources(ctx)
	if err != nil {
		t.Fatalf("ListCachedSources: %v", err)
	}
	if len(sources) != 1 || sources[0].VersionCount != 2 {
		t.Errorf("sources = %v, want one source with 2 versions", sources)
	}

	removed, err := e.orch.ClearCache(ctx, "hdfc-bank:pdf")
	if err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	if removed != 2 {
		t.Errorf("ClearCache removed %d, want 2", removed)
	}
}
