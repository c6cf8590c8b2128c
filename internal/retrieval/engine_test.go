package retrieval

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	docs         []Document
	nearestCalls []CandidateFilter
	matchCalls   []CandidateFilter
}

func (f *fakeStore) admits(filter CandidateFilter, d Document) bool {
	if filter.Domain != "" && d.MedicalDomain != filter.Domain {
		return false
	}
	if filter.EmergencyOnly && !d.IsEmergency {
		return false
	}
	if filter.MinAuthority > 0 {
		if d.AuthorityLevel == nil {
			if filter.ExcludeUnrated {
				return false
			}
		} else if *d.AuthorityLevel < filter.MinAuthority {
			return false
		}
	}
	text := strings.ToLower(d.Title + " " + d.Content)
	for _, kw := range filter.AllKeywords {
		if !strings.Contains(text, kw) {
			return false
		}
	}
	if len(filter.AnyKeywords) > 0 {
		hit := false
		for _, kw := range filter.AnyKeywords {
			if strings.Contains(text, kw) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func (f *fakeStore) NearestDocuments(_ context.Context, filter CandidateFilter, embedding []float32, limit int) ([]Document, error) {
	f.nearestCalls = append(f.nearestCalls, filter)
	var out []Document
	for _, d := range f.docs {
		if f.admits(filter, d) && d.Embedding != nil {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return CosineSimilarity(out[i].Embedding, embedding) > CosineSimilarity(out[j].Embedding, embedding)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) MatchDocuments(_ context.Context, filter CandidateFilter, limit int) ([]Document, error) {
	f.matchCalls = append(f.matchCalls, filter)
	var out []Document
	for _, d := range f.docs {
		if f.admits(filter, d) {
			out = append(out, d)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return f.vec, f.err
}

func corpus() []Document {
	return []Document{
		{ID: 1, Title: "Dengue", Content: "Dengue is spread by mosquitoes.", Embedding: []float32{1, 0, 0}, MedicalDomain: "infectious_disease", Source: "CDC"},
		{ID: 2, Title: "Angina", Content: "Chest pressure from reduced blood flow.", Embedding: []float32{0, 1, 0}, MedicalDomain: "cardiology", Source: "NIH"},
		{ID: 3, Title: "Migraine", Content: "Throbbing headache with aura.", Embedding: []float32{0, 0, 1}, MedicalDomain: "neurology", Source: "MedQuAD - NINDS"},
		{ID: 4, Title: "Ibuprofen", Content: "NSAID used for pain.", Embedding: []float32{0.5, 0.5, 0}, MedicalDomain: "general", Source: "Generic"},
		{ID: 5, Title: "Warfarin", Content: "Anticoagulant; bleeding risk.", Embedding: []float32{0.5, 0, 0.5}, MedicalDomain: "hematology", Source: "NIH"},
		{ID: 6, Title: "Unembedded stroke page", Content: "Stroke signs.", MedicalDomain: "neurology", Source: "CDC"},
	}
}

func chunkIDs(r Result) []int64 {
	ids := make([]int64, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestRetrieveRejectsUnsupportedBackend(t *testing.T) {
	e := NewEngine(&fakeStore{}, fakeEmbedder{}, "qdrant", nil)
	_, err := e.Retrieve(context.Background(), Query{Text: "x"})
	assert.ErrorIs(t, err, ErrUnsupportedBackend)
}

func TestRetrieveRequiresStore(t *testing.T) {
	e := NewEngine(nil, fakeEmbedder{}, BackendPGVector, nil)
	_, err := e.Retrieve(context.Background(), Query{Text: "x"})
	assert.ErrorIs(t, err, ErrNoDatabase)
}

func TestRetrieveStrictDomain(t *testing.T) {
	store := &fakeStore{docs: corpus()}
	e := NewEngine(store, fakeEmbedder{vec: []float32{0, 0, 1}}, BackendPGVector, nil)

	res, err := e.Retrieve(context.Background(), Query{Text: "throbbing headache", Domain: "cardiology"})
	require.NoError(t, err)
	for _, c := range res.Chunks {
		assert.Equal(t, "cardiology", c.Citation.MedicalDomain)
	}
	for _, f := range append(store.nearestCalls, store.matchCalls...) {
		assert.Equal(t, "cardiology", f.Domain)
	}
}

func TestRetrieveEmergencyIgnoresDomain(t *testing.T) {
	docs := corpus()
	docs[1].IsEmergency = true
	store := &fakeStore{docs: docs}
	e := NewEngine(store, fakeEmbedder{vec: []float32{0, 1, 0}}, BackendPGVector, nil)

	res, err := e.Retrieve(context.Background(), Query{Text: "chest pressure", Domain: "neurology", Emergency: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, chunkIDs(res))
	for _, f := range store.matchCalls {
		assert.Empty(t, f.Domain)
		assert.True(t, f.EmergencyOnly)
	}
}

func TestRetrieveRelaxesMandatoryKeywords(t *testing.T) {
	store := &fakeStore{docs: corpus()}
	e := NewEngine(store, fakeEmbedder{vec: []float32{1, 0, 0}}, BackendPGVector, nil)

	res, err := e.Retrieve(context.Background(), Query{Text: "what are the symptoms of dengue hemorrhagic"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Chunks)
	assert.Equal(t, int64(1), res.Chunks[0].ID)

	require.GreaterOrEqual(t, len(store.matchCalls), 2)
	assert.Equal(t, []string{"dengue", "hemorrhagic"}, store.matchCalls[0].AllKeywords)
	assert.Empty(t, store.matchCalls[1].AllKeywords)
}

func TestRetrieveMedicationMergesDrugTerms(t *testing.T) {
	store := &fakeStore{docs: corpus()}
	e := NewEngine(store, fakeEmbedder{err: errors.New("model offline")}, BackendPGVector, nil)

	res, err := e.Retrieve(context.Background(), Query{Text: "can I take ibuprofen with warfarin", Limit: 2})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{4, 5}, chunkIDs(res))
	assert.Empty(t, store.nearestCalls, "vector search is skipped without an embedding")

	last := store.matchCalls[len(store.matchCalls)-1]
	assert.Equal(t, []string{"ibuprofen", "warfarin"}, last.AnyKeywords)
}

func TestRetrieveSkipsDocumentsWithoutEmbedding(t *testing.T) {
	store := &fakeStore{docs: corpus()}
	e := NewEngine(store, fakeEmbedder{vec: []float32{0, 0, 1}}, BackendPGVector, nil)

	res, err := e.Retrieve(context.Background(), Query{Text: "stroke signs", Limit: 10})
	require.NoError(t, err)
	assert.NotContains(t, chunkIDs(res), int64(6))
}

func TestRetrieveRanksAndNumbersChunks(t *testing.T) {
	store := &fakeStore{docs: corpus()}
	e := NewEngine(store, fakeEmbedder{vec: []float32{0, 0, 1}}, BackendPGVector, nil)

	res, err := e.Retrieve(context.Background(), Query{Text: "migraine aura"})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 3)
	assert.Equal(t, int64(3), res.Chunks[0].ID)
	for i, c := range res.Chunks {
		assert.Equal(t, i+1, c.Number)
		if i > 0 {
			assert.GreaterOrEqual(t, res.Chunks[i-1].Score, c.Score)
		}
	}
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.Equal(t, "Throbbing headache with aura.", res.Passages()[0])
	assert.Len(t, res.Citations(), 3)
}

func TestRetrieveEmptyCorpus(t *testing.T) {
	e := NewEngine(&fakeStore{}, fakeEmbedder{vec: []float32{1}}, BackendPGVector, nil)
	res, err := e.Retrieve(context.Background(), Query{Text: "anything", Emergency: true, Domain: "cardiology"})
	require.NoError(t, err)
	assert.Empty(t, res.Chunks)
	assert.Zero(t, res.Confidence)
}
