// Package search implements the Search Layer: an inverted index kept
// consistent across the ring by CDE's publish/search lookup primitive, plus
// the small posting-list transfer protocol CDE itself deliberately stops
// short of (ground: teacher internal/storage, node.Put/Get §9 callback
// design note).
package search

import (
	"sort"
	"strings"

	"overlaysearch/internal/domain"
	"overlaysearch/internal/storage"
)

// index wraps the teacher's key-value Storage to hold one domain.Resource
// per term: RawKey is the term itself, Value is its posting list serialized
// as a comma-joined, sorted set of document IDs.
type index struct {
	space domain.Space
	store storage.Storage
}

func newIndex(space domain.Space, store storage.Storage) *index {
	return &index{space: space, store: store}
}

// addPosting appends docID to term's posting list, deduplicating.
func (ix *index) addPosting(term, docID string) {
	key := ix.space.NewIdFromString(term)
	existing, err := ix.store.Get(key)
	var postings []string
	if err == nil {
		postings = splitPostings(existing.Value)
	}
	postings = insertSorted(postings, docID)
	ix.store.Put(domain.Resource{Key: key, RawKey: term, Value: joinPostings(postings)})
}

// postings returns the locally stored posting list for term.
func (ix *index) postings(term string) []string {
	key := ix.space.NewIdFromString(term)
	res, err := ix.store.Get(key)
	if err != nil {
		return nil
	}
	return splitPostings(res.Value)
}

// allTerms returns every locally stored term and its posting list.
func (ix *index) allTerms() map[string][]string {
	all := ix.store.All()
	out := make(map[string][]string, len(all))
	for _, res := range all {
		out[res.RawKey] = splitPostings(res.Value)
	}
	return out
}

func splitPostings(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func joinPostings(ids []string) string {
	return strings.Join(ids, ",")
}

func insertSorted(postings []string, docID string) []string {
	i := sort.SearchStrings(postings, docID)
	if i < len(postings) && postings[i] == docID {
		return postings
	}
	postings = append(postings, "")
	copy(postings[i+1:], postings[i:])
	postings[i] = docID
	return postings
}

// intersect returns the sorted intersection of two posting lists.
func intersect(a, b []string) []string {
	out := make([]string, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}
