package search

import (
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/gocarina/gocsv"

	"overlaysearch/internal/logger"
)

// docRow is one row of the ingestion corpus: a document ID and its text,
// tokenized into terms at load time.
type docRow struct {
	DocID string `csv:"doc_id"`
	Text  string `csv:"text"`
}

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

// tokenize lower-cases and splits text into alphanumeric terms.
func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Ingest loads path as a CSV of (doc_id, text) rows and publishes one
// (term, docID) pair per distinct term in each row's text, re-populating
// the ring's index at startup since spec §6 requires no persisted state.
func (l *Layer) Ingest(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var rows []*docRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return err
	}

	for _, row := range rows {
		seen := make(map[string]struct{})
		for _, term := range tokenize(row.Text) {
			if _, dup := seen[term]; dup {
				continue
			}
			seen[term] = struct{}{}
			l.Publish(ctx, term, row.DocID)
		}
	}
	l.lgr.Info("search: ingestion complete", logger.F("documents", len(rows)))
	return nil
}
