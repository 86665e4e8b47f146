// Package review consolidates per-document review queues into one
// append-only cross-document queue.
package review

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/collate/internal/lock"
)

//go:embed review_item.schema.json
var itemSchema []byte

// DocumentIDField is added to every consolidated record.
const DocumentIDField = "document_id"

// maxRecordSize bounds one queue line.
const maxRecordSize = 4 * 1024 * 1024

// Source is one document's review queue.
type Source struct {
	DocumentID string
	Path       string
}

// Stats summarizes one aggregation.
type Stats struct {
	Documents int `json:"documents" yaml:"documents"` // Queues read
	Missing   int `json:"missing" yaml:"missing"`     // Queue file absent
	Failed    int `json:"failed" yaml:"failed"`       // Queue file unreadable
	Appended  int `json:"appended" yaml:"appended"`
	Skipped   int `json:"skipped" yaml:"skipped"` // Malformed records
}

// Options configure an Aggregator.
type Options struct {
	// LockDir, when set, serializes appends across processes.
	LockDir string
	// LockWait bounds how long to wait for another writer; zero fails at once.
	LockWait time.Duration
	Logger   *slog.Logger
}

// Aggregator appends validated records to a consolidated queue.
type Aggregator struct {
	schema *jsonschema.Schema
	opts   Options
	logger *slog.Logger
}

// New compiles the record schema.
func New(opts Options) (*Aggregator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("review_item.schema.json", bytes.NewReader(itemSchema)); err != nil {
		return nil, fmt.Errorf("failed to load review item schema: %w", err)
	}
	schema, err := compiler.Compile("review_item.schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile review item schema: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{schema: schema, opts: opts, logger: logger}, nil
}

// Aggregate appends every valid record of every existing source queue to dst,
// tagged with its document identifier. Missing queues and malformed records
// are skipped. Prior entries of dst are never modified.
func (a *Aggregator) Aggregate(ctx context.Context, sources []Source, dst string) (stats Stats, err error) {
	if a.opts.LockDir != "" {
		l, err := a.acquire(ctx)
		if err != nil {
			return stats, err
		}
		defer func() {
			if rerr := l.Release(); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}()
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return stats, fmt.Errorf("failed to create queue dir: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return stats, fmt.Errorf("failed to open consolidated queue: %w", err)
	}
	defer func() {
		if serr := out.Sync(); serr != nil {
			err = errors.Join(err, fmt.Errorf("failed to sync consolidated queue: %w", serr))
		}
		if cerr := out.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		records, skipped, rerr := a.readQueue(src)
		stats.Skipped += skipped
		switch {
		case errors.Is(rerr, fs.ErrNotExist):
			stats.Missing++
			continue
		case rerr != nil:
			stats.Failed++
			a.logger.Warn("failed to read review queue", "document", src.DocumentID, "path", src.Path, "error", rerr)
			continue
		}
		stats.Documents++
		if len(records) == 0 {
			continue
		}

		// One write per document keeps its records contiguous.
		if _, err := out.Write(bytes.Join(records, nil)); err != nil {
			return stats, fmt.Errorf("failed to append records for %s: %w", src.DocumentID, err)
		}
		stats.Appended += len(records)
	}

	a.logger.Info("review queues aggregated",
		"documents", stats.Documents, "missing", stats.Missing,
		"appended", stats.Appended, "skipped", stats.Skipped, "queue", dst)
	return stats, nil
}

func (a *Aggregator) acquire(ctx context.Context) (*lock.Lock, error) {
	attempts := uint(1)
	delay := 250 * time.Millisecond
	if a.opts.LockWait > 0 {
		attempts = uint(a.opts.LockWait/delay) + 1
	}
	return retry.DoWithData(
		func() (*lock.Lock, error) {
			return lock.Acquire(a.opts.LockDir)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, lock.ErrHeld)
		}),
	)
}

// readQueue returns the valid records of one queue, each tagged and
// newline-terminated, and the number of malformed or oversized records skipped.
func (a *Aggregator) readQueue(src Source) ([][]byte, int, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var records [][]byte
	skipped := 0
	r := bufio.NewReaderSize(f, 64*1024)
	for lineNo := 1; ; lineNo++ {
		raw, tooLong, rerr := readRecord(r)
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return nil, skipped, fmt.Errorf("failed to read %s: %w", src.Path, rerr)
		}

		line := strings.TrimSpace(string(raw))
		switch {
		case tooLong:
			skipped++
			a.logger.Warn("skipping oversized review record",
				"document", src.DocumentID, "path", src.Path, "line", lineNo, "limit", maxRecordSize)
		case line != "":
			if rec, err := a.tag(line, src.DocumentID); err != nil {
				skipped++
				a.logger.Warn("skipping malformed review record",
					"document", src.DocumentID, "path", src.Path, "line", lineNo, "error", err)
			} else {
				records = append(records, rec)
			}
		}

		if rerr != nil {
			return records, skipped, nil
		}
	}
}

// readRecord reads one line. A line longer than maxRecordSize is consumed
// and reported as tooLong without being buffered.
func readRecord(r *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		chunk, rerr := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxRecordSize {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(rerr, bufio.ErrBufferFull) {
			continue
		}
		return line, tooLong, rerr
	}
}

// tag validates one record and adds the document identifier.
func (a *Aggregator) tag(line, docID string) ([]byte, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON: trailing data after record")
	}
	if err := a.schema.Validate(doc); err != nil {
		return nil, err
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("record is not an object")
	}
	obj[DocumentIDField] = docID

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(obj); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return buf.Bytes(), nil
}
