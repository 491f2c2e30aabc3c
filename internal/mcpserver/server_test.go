package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/verba/internal/checklist"
	"github.com/starford/verba/internal/docwatch"
	"github.com/starford/verba/internal/highlight"
	"github.com/starford/verba/internal/models"
	"github.com/starford/verba/internal/notify"
	"github.com/starford/verba/internal/store"
	"github.com/starford/verba/internal/testutil"
)

type testEnv struct {
	srv *Server
	db  *store.DB
	hl  *highlight.Service
}

func testServer(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := testutil.TestDB(t)
	_, docs := testutil.TestDocuments(t)
	rec := &notify.Recorder{}

	hl := highlight.NewService(highlight.NewRegistry(), db, nil, rec, logger)
	cl := checklist.NewService(db, nil, rec, nil, logger)
	srv := New(Deps{
		Highlights:   hl,
		Checklist:    cl,
		Catalog:      db,
		Documents:    docs,
		DocumentSync: &docwatch.Syncer{Index: db, Docs: docs, Reset: hl, Logger: logger},
	})
	return &testEnv{srv: srv, db: db, hl: hl}
}

func (e *testEnv) seed(t *testing.T, highlightIDs ...string) {
	t.Helper()
	ctx := context.Background()
	if err := e.db.UpsertDecision(ctx, models.Decision{ID: "d1", Identifier: "DEC-001", ProcessID: "p1"}); err != nil {
		t.Fatal(err)
	}
	err := e.db.UpsertGroup(ctx, models.EntryGroup{ID: "g1", Label: "Horas extras", ProcessID: "p1", Entries: []models.LedgerEntry{
		{ID: "e1", LinkedDecisionRef: "DEC-001 - Horas extras", HighlightIDs: highlightIDs},
		{ID: "e2", LinkedDecisionRef: "DEC-999 - Inexistente"},
		{ID: "e3"},
	}})
	if err != nil {
		t.Fatal(err)
	}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_documents":
		result, err = srv.listDocuments(ctx, req)
	case "list_entries":
		result, err = srv.listEntries(ctx, req)
	case "checklist_stats":
		result, err = srv.checklistStats(ctx, req)
	case "advance_entry":
		result, err = srv.advanceEntry(ctx, req)
	case "regress_entry":
		result, err = srv.regressEntry(ctx, req)
	case "set_entry_check":
		result, err = srv.setEntryCheck(ctx, req)
	case "resolve_entry_highlights":
		result, err = srv.resolveEntryHighlights(ctx, req)
	case "resolve_linked_decision":
		result, err = srv.resolveLinkedDecision(ctx, req)
	case "search_annotations":
		result, err = srv.searchAnnotations(ctx, req)
	case "import_document":
		result, err = srv.importDocument(ctx, req)
	case "get_checklist_workflow":
		result, err = srv.getChecklistWorkflow(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestAdvanceAndStats(t *testing.T) {
	e := testServer(t)
	e.seed(t)

	r := callTool(t, e.srv, "advance_entry", map[string]interface{}{"entry_id": "e1"})
	if r.IsError {
		t.Fatalf("advance: %s", resultText(r))
	}
	var res struct {
		Entry models.LedgerEntry `json:"entry"`
		State checklist.State    `json:"state"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if res.State != checklist.StatePrepared || !res.Entry.CheckPreparer {
		t.Errorf("after advance = %+v", res)
	}

	callTool(t, e.srv, "advance_entry", map[string]interface{}{"entry_id": "e1"})
	r = callTool(t, e.srv, "checklist_stats", map[string]interface{}{"process_id": "p1"})
	var stats struct {
		Stats  checklist.Stats `json:"stats"`
		Status string          `json:"status"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Stats.Approved != 1 || stats.Stats.PercentApproved != 33 || stats.Status != models.RollupInProgress {
		t.Errorf("stats = %+v", stats)
	}

	r = callTool(t, e.srv, "regress_entry", map[string]interface{}{"entry_id": "e1"})
	if !strings.Contains(resultText(r), `"state": "prepared"`) {
		t.Errorf("regress result = %s", resultText(r))
	}
}

func TestSetEntryCheck_Invariant(t *testing.T) {
	e := testServer(t)
	e.seed(t)

	r := callTool(t, e.srv, "set_entry_check", map[string]interface{}{"entry_id": "e2", "role": "reviewer", "value": true})
	if !r.IsError {
		t.Errorf("reviewer without preparer should fail, got %s", resultText(r))
	}
	r = callTool(t, e.srv, "set_entry_check", map[string]interface{}{"entry_id": "e2", "role": "preparer", "value": true})
	if r.IsError {
		t.Errorf("set preparer: %s", resultText(r))
	}
	r = callTool(t, e.srv, "set_entry_check", map[string]interface{}{"entry_id": "e2", "role": "preparer"})
	if !r.IsError {
		t.Error("missing value should fail")
	}
}

func TestUnknownEntry(t *testing.T) {
	e := testServer(t)
	r := callTool(t, e.srv, "advance_entry", map[string]interface{}{"entry_id": "ghost"})
	if !r.IsError || !strings.HasPrefix(resultText(r), "not found") {
		t.Errorf("unknown entry = %q", resultText(r))
	}
}

func TestListEntries(t *testing.T) {
	e := testServer(t)
	e.seed(t)
	r := callTool(t, e.srv, "list_entries", map[string]interface{}{"process_id": "p1"})
	var rows []struct {
		ID    string          `json:"id"`
		State checklist.State `json:"state"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[0].ID != "e1" || rows[0].State != checklist.StatePending {
		t.Errorf("rows = %+v", rows)
	}
}

func TestResolveCrossReferences(t *testing.T) {
	e := testServer(t)
	hs, err := e.hl.Commit(context.Background(), highlight.Draft{
		DocumentID: "doc.pdf", Text: "trecho",
		Rects: map[int][]models.Rect{4: {{X: 1, Y: 1, Width: 10, Height: 5}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	e.seed(t, hs[0].ID, "gone")

	r := callTool(t, e.srv, "resolve_entry_highlights", map[string]interface{}{"entry_id": "e1"})
	var res struct {
		Highlights []models.Highlight `json:"highlights"`
		Stale      []string           `json:"stale"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Highlights) != 1 || res.Highlights[0].ID != hs[0].ID {
		t.Errorf("highlights = %+v", res.Highlights)
	}
	if len(res.Stale) != 1 || res.Stale[0] != "gone" {
		t.Errorf("stale = %v", res.Stale)
	}

	r = callTool(t, e.srv, "resolve_linked_decision", map[string]interface{}{"entry_id": "e1"})
	if !strings.Contains(resultText(r), `"identifier": "DEC-001"`) {
		t.Errorf("decision = %s", resultText(r))
	}
	r = callTool(t, e.srv, "resolve_linked_decision", map[string]interface{}{"entry_id": "e2"})
	if r.IsError || !strings.HasPrefix(resultText(r), "no decision matches") {
		t.Errorf("unresolved decision = %q", resultText(r))
	}
}

func TestImportDocument_DataURI(t *testing.T) {
	e := testServer(t)
	uri := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 test"))

	r := callTool(t, e.srv, "import_document", map[string]interface{}{"url": uri, "path": "vol1/../sentença.pdf"})
	if r.IsError {
		t.Fatalf("import: %s", resultText(r))
	}
	var res importResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatal(err)
	}
	if res.Path != "vol1/senten_a.pdf" || res.Checksum == "" || res.Replaced {
		t.Errorf("import result = %+v", res)
	}

	r = callTool(t, e.srv, "import_document", map[string]interface{}{"url": uri, "path": res.Path})
	if !r.IsError {
		t.Error("second import without replace should fail")
	}

	r = callTool(t, e.srv, "list_documents", map[string]interface{}{})
	if resultText(r) != "vol1/senten_a.pdf" {
		t.Errorf("documents = %q", resultText(r))
	}
}

func TestImportDocument_Rejections(t *testing.T) {
	e := testServer(t)
	notPDF := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))
	for name, url := range map[string]string{
		"not a pdf":   notPDF,
		"png mime":    "data:image/png;base64,AAAA",
		"loopback":    "http://127.0.0.1/file.pdf",
		"private 10":  "http://10.0.0.1/a.pdf",
		"private 192": "http://192.168.1.1/a.pdf",
		"private 172": "http://172.16.4.2/a.pdf",
		"link local":  "http://169.254.10.1/a.pdf",
		"metadata":    "http://169.254.169.254/latest/a.pdf",
		"unspecified": "http://0.0.0.0/a.pdf",
		"ipv6 ula":    "http://[fd00::1]/a.pdf",
		"scheme":      "ftp://example.com/file.pdf",
	} {
		r := callTool(t, e.srv, "import_document", map[string]interface{}{"url": url})
		if !r.IsError {
			t.Errorf("%s: expected error, got %s", name, resultText(r))
		}
	}
}

func TestImportDocument_NameResolvingToLoopbackIsRefusedAtDial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 test"))
	}))
	defer srv.Close()

	_, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatal(err)
	}
	e := testServer(t)
	r := callTool(t, e.srv, "import_document", map[string]interface{}{"url": "http://localhost:" + port + "/a.pdf"})
	if !r.IsError {
		t.Fatalf("import from a loopback name succeeded: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "blocked dial") {
		t.Errorf("error = %q, want a dial refusal", resultText(r))
	}
}

func TestBlockedIP(t *testing.T) {
	for _, addr := range []string{"127.0.0.1", "::1", "10.1.2.3", "172.31.0.1", "192.168.0.10", "169.254.169.254", "fe80::1", "fd12::1", "0.0.0.0", "::", "224.0.0.1"} {
		if !blockedIP(net.ParseIP(addr)) {
			t.Errorf("blockedIP(%s) = false, want true", addr)
		}
	}
	for _, addr := range []string{"93.184.216.34", "8.8.8.8", "2606:4700::1111"} {
		if blockedIP(net.ParseIP(addr)) {
			t.Errorf("blockedIP(%s) = true, want false", addr)
		}
	}
}

func TestSanitizePath(t *testing.T) {
	cases := map[string]string{
		"a.pdf":                "a.pdf",
		"../../etc/passwd.pdf": "etc/passwd.pdf",
		`vol\2\b c.pdf`:        "vol/2/b_c.pdf",
	}
	for in, want := range cases {
		if got := sanitizePath(in); got != want {
			t.Errorf("sanitizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWorkflowContract(t *testing.T) {
	e := testServer(t)
	r := callTool(t, e.srv, "get_checklist_workflow", map[string]interface{}{})
	if !strings.Contains(resultText(r), "advance_entry") {
		t.Error("workflow text does not mention advance_entry")
	}
}
