package sync

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/refguard/internal/model"
	"github.com/alfredjeanlab/refguard/internal/store"
)

// formatVersion is written in every export header.
const formatVersion = "1"

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version         string    `json:"version"`
	Type            string    `json:"type"`
	Timestamp       time.Time `json:"timestamp"`
	CollectionCount int       `json:"collection_count"`
	DocumentCount   int       `json:"document_count"`
}

// record wraps a single document line.
type record struct {
	Type       string          `json:"type"`
	Collection string          `json:"collection"`
	Data       *model.Document `json:"data"`
}

// ExportJSONL writes every document in the store as JSONL to w: a header,
// then one record per document sorted by collection and then by ID.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	collections, err := s.Collections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}

	// Stores return collections and documents sorted; the export relies on it.
	var records []record
	for _, c := range collections {
		docs, err := s.List(ctx, c)
		if err != nil {
			return fmt.Errorf("list %s: %w", c, err)
		}
		for _, d := range docs {
			records = append(records, record{Type: "document", Collection: c, Data: d})
		}
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:         formatVersion,
		Type:            "header",
		Timestamp:       time.Now().UTC(),
		CollectionCount: len(collections),
		DocumentCount:   len(records),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode %s %s: %w", r.Collection, r.Data.ID, err)
		}
	}
	return nil
}

// ImportJSONL inserts every document record read from r and returns how many
// were written. Records are stored as-is: an export is a consistent snapshot,
// so references are not re-checked. Documents whose ID already exists are
// skipped.
func ImportJSONL(ctx context.Context, s store.Store, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		line    int
		written int
		sawHead bool
	)
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var head struct {
			Type    string `json:"type"`
			Version string `json:"version"`
		}
		if err := json.Unmarshal(sc.Bytes(), &head); err != nil {
			return written, fmt.Errorf("line %d: %w", line, err)
		}
		switch head.Type {
		case "header":
			if head.Version != formatVersion {
				return written, fmt.Errorf("line %d: unsupported export version %q", line, head.Version)
			}
			sawHead = true
		case "document":
			var rec record
			if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
				return written, fmt.Errorf("line %d: %w", line, err)
			}
			if rec.Collection == "" || rec.Data == nil || rec.Data.ID == "" {
				return written, fmt.Errorf("line %d: document record needs a collection and an _id", line)
			}
			err := s.Insert(ctx, rec.Collection, rec.Data)
			if errors.Is(err, store.ErrDuplicateID) {
				continue
			}
			if err != nil {
				return written, fmt.Errorf("line %d: insert %s %s: %w", line, rec.Collection, rec.Data.ID, err)
			}
			written++
		default:
			return written, fmt.Errorf("line %d: unknown record type %q", line, head.Type)
		}
	}
	if err := sc.Err(); err != nil {
		return written, err
	}
	if line > 0 && !sawHead {
		return written, fmt.Errorf("missing export header")
	}
	return written, nil
}
