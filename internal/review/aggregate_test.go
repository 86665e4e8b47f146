package review

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/collate/internal/lock"
)

func writeQueue(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name, "review_queue.jsonl")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("consolidated queue holds invalid JSON %q: %v", sc.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

func newAggregator(t *testing.T, opts Options) *Aggregator {
	t.Helper()
	a, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestAggregate(t *testing.T) {
	dir := t.TempDir()
	docA := writeQueue(t, dir, "doc-a",
		`{"page":1,"line":1,"candidate_a":"The rain fell.","candidate_b":"The rain feII.","reason":"conflict","status":"pending"}`+"\n"+
			`{"page":2,"line":3,"candidate_a":null,"candidate_b":"Chapter One","reason":"missing-source","status":"pending"}`+"\n")
	docB := writeQueue(t, dir, "doc-b",
		`not json`+"\n"+
			`{"page":1,"line":1,"reason":"conflict"}`+"\n"+
			`{"page":1,"line":2,"candidate_a":"x","reason":"unknown"}`+"\n"+
			"\n"+
			`{"page":4,"line":1,"candidate_a":"<b>kept</b> & verbatim","reason":"low-confidence"}`+"\n")
	empty := writeQueue(t, dir, "doc-empty", "")

	dst := filepath.Join(dir, "out", "review_queue.jsonl")
	a := newAggregator(t, Options{})
	stats, err := a.Aggregate(context.Background(), []Source{
		{DocumentID: "doc-a", Path: docA},
		{DocumentID: "doc-missing", Path: filepath.Join(dir, "nope", "review_queue.jsonl")},
		{DocumentID: "doc-b", Path: docB},
		{DocumentID: "doc-empty", Path: empty},
	}, dst)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	want := Stats{Documents: 3, Missing: 1, Appended: 3, Skipped: 3}
	if stats != want {
		t.Errorf("expected stats %+v, got %+v", want, stats)
	}

	recs := readRecords(t, dst)
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	wantDocs := []string{"doc-a", "doc-a", "doc-b"}
	for i, rec := range recs {
		if rec[DocumentIDField] != wantDocs[i] {
			t.Errorf("record %d: expected document %s, got %v", i, wantDocs[i], rec[DocumentIDField])
		}
	}
	if recs[0]["candidate_b"] != "The rain feII." || recs[0]["reason"] != "conflict" {
		t.Errorf("record fields should be preserved, got %v", recs[0])
	}
	if recs[2]["candidate_a"] != "<b>kept</b> & verbatim" {
		t.Errorf("candidate text should be verbatim, got %v", recs[2]["candidate_a"])
	}

	raw, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), `\u003c`) {
		t.Error("records should not be HTML-escaped")
	}
}

func TestAggregate_AppendOnly(t *testing.T) {
	dir := t.TempDir()
	queue := writeQueue(t, dir, "doc", `{"page":1,"line":1,"candidate_a":"a","reason":"missing-source"}`+"\n")
	dst := filepath.Join(dir, "review_queue.jsonl")
	prior := `{"document_id":"old","page":9,"line":9,"candidate_a":"prior","reason":"conflict"}` + "\n"
	if err := os.WriteFile(dst, []byte(prior), 0o644); err != nil {
		t.Fatal(err)
	}

	a := newAggregator(t, Options{})
	for i := 0; i < 2; i++ {
		if _, err := a.Aggregate(context.Background(), []Source{{DocumentID: "doc", Path: queue}}, dst); err != nil {
			t.Fatal(err)
		}
	}

	raw, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(raw), prior) {
		t.Error("prior entries must be left untouched")
	}
	if recs := readRecords(t, dst); len(recs) != 3 {
		t.Errorf("expected prior record plus one per run, got %d", len(recs))
	}
}

func TestAggregate_SingleWriterLock(t *testing.T) {
	dir := t.TempDir()
	lockDir := filepath.Join(dir, "aggregate.lock")
	queue := writeQueue(t, dir, "doc", `{"page":1,"line":1,"candidate_a":"a","reason":"missing-source"}`+"\n")
	dst := filepath.Join(dir, "review_queue.jsonl")

	held, err := lock.Acquire(lockDir)
	if err != nil {
		t.Fatal(err)
	}

	a := newAggregator(t, Options{LockDir: lockDir})
	_, err = a.Aggregate(context.Background(), []Source{{DocumentID: "doc", Path: queue}}, dst)
	if !errors.Is(err, lock.ErrHeld) {
		t.Fatalf("expected lock contention, got %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("nothing should be written without the lock")
	}

	// A waiting aggregator proceeds once the holder releases.
	waiting := newAggregator(t, Options{LockDir: lockDir, LockWait: 5 * time.Second})
	go func() {
		time.Sleep(300 * time.Millisecond)
		held.Release()
	}()
	stats, err := waiting.Aggregate(context.Background(), []Source{{DocumentID: "doc", Path: queue}}, dst)
	if err != nil {
		t.Fatalf("expected aggregation after release, got %v", err)
	}
	if stats.Appended != 1 {
		t.Errorf("expected 1 appended record, got %d", stats.Appended)
	}
	if _, err := os.Stat(lockDir); !os.IsNotExist(err) {
		t.Error("aggregator should release its lock")
	}
}

func TestAggregate_Cancelled(t *testing.T) {
	dir := t.TempDir()
	queue := writeQueue(t, dir, "doc", `{"page":1,"line":1,"candidate_a":"a","reason":"missing-source"}`+"\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := newAggregator(t, Options{})
	_, err := a.Aggregate(ctx, []Source{{DocumentID: "doc", Path: queue}}, filepath.Join(dir, "out.jsonl"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestAggregate_OversizedRecord(t *testing.T) {
	dir := t.TempDir()
	huge := `{"page":1,"line":2,"candidate_a":"` + strings.Repeat("x", 5*1024*1024) + `","reason":"conflict"}`
	queue := writeQueue(t, dir, "doc",
		`{"page":1,"line":1,"candidate_a":"before","reason":"missing-source"}`+"\n"+
			huge+"\n"+
			`{"page":1,"line":3,"candidate_a":"after","reason":"missing-source"}`)
	dst := filepath.Join(dir, "review_queue.jsonl")

	stats, err := newAggregator(t, Options{}).Aggregate(context.Background(), []Source{{DocumentID: "doc", Path: queue}}, dst)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	want := Stats{Documents: 1, Appended: 2, Skipped: 1}
	if stats != want {
		t.Errorf("expected stats %+v, got %+v", want, stats)
	}

	recs := readRecords(t, dst)
	if len(recs) != 2 || recs[0]["candidate_a"] != "before" || recs[1]["candidate_a"] != "after" {
		t.Errorf("records around the oversized one should be kept, got %v", recs)
	}
}

func TestAggregate_NumbersValidated(t *testing.T) {
	dir := t.TempDir()
	queue := writeQueue(t, dir, "doc",
		`{"page":1.5,"line":1,"candidate_a":"fractional page","reason":"conflict"}`+"\n"+
			`{"page":0,"line":0,"candidate_a":"zero line","reason":"conflict"}`+"\n"+
			`{"page":12,"line":40,"candidate_a":"kept","reason":"conflict"} trailing`+"\n"+
			`{"page":12,"line":40,"candidate_a":"kept","reason":"conflict"}`+"\n")
	dst := filepath.Join(dir, "review_queue.jsonl")

	stats, err := newAggregator(t, Options{}).Aggregate(context.Background(), []Source{{DocumentID: "doc", Path: queue}}, dst)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if stats.Appended != 1 || stats.Skipped != 3 {
		t.Errorf("expected 1 appended and 3 skipped, got %+v", stats)
	}

	raw, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"page":12`) || !strings.Contains(string(raw), `"line":40`) {
		t.Errorf("integers should be written unchanged, got %s", raw)
	}
}
