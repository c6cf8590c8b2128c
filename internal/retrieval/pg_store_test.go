package retrieval

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }
func i32p(v int32) *int32  { return &v }

var documentRowColumns = []string{
	"id", "title", "source", "content", "embedding", "medical_domain", "content_type",
	"authority_level", "is_emergency", "published_by", "source_file", "page_number", "chunk_index",
}

func TestPGDocumentStoreNearestDocuments(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows(documentRowColumns).
		AddRow(int64(7), "Angina", "CDC", "Chest pressure.", strp("[0.1,0.2,0.3]"), strp("cardiology"), strp("educational"),
			i32p(3), false, strp("CDC"), strp("angina.pdf"), i32p(2), i32p(0)).
		AddRow(int64(8), "Heart attack", "NIH", "Call emergency services.", nil, nil, nil,
			nil, true, nil, nil, nil, nil)

	mock.ExpectQuery(`SELECT .+ FROM medical_documents WHERE medical_domain = \$1 AND \(authority_level >= \$2 OR authority_level IS NULL\) AND \(title ILIKE \$3 OR content ILIKE \$3\) ORDER BY embedding <=> \$4 LIMIT \$5`).
		WithArgs("cardiology", 2, "%angina%", pgxmock.AnyArg(), 60).
		WillReturnRows(rows)

	store := NewPGDocumentStore(mock)
	docs, err := store.NearestDocuments(context.Background(), CandidateFilter{
		Domain:       "cardiology",
		MinAuthority: 2,
		AllKeywords:  []string{"angina"},
	}, []float32{0.1, 0.2, 0.3}, 60)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, docs[0].Embedding)
	assert.Equal(t, "cardiology", docs[0].MedicalDomain)
	require.NotNil(t, docs[0].AuthorityLevel)
	assert.Equal(t, 3, *docs[0].AuthorityLevel)
	assert.Equal(t, 2, *docs[0].PageNumber)

	assert.Nil(t, docs[1].Embedding)
	assert.Nil(t, docs[1].AuthorityLevel)
	assert.True(t, docs[1].IsEmergency)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGDocumentStoreMatchDocumentsAnyKeyword(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .+ FROM medical_documents WHERE is_emergency = TRUE AND authority_level >= \$1 AND \(\(title ILIKE \$2 OR content ILIKE \$2\) OR \(title ILIKE \$3 OR content ILIKE \$3\)\) ORDER BY id LIMIT \$4`).
		WithArgs(3, "%ibuprofen%", "%warfarin%", 20).
		WillReturnRows(pgxmock.NewRows(documentRowColumns))

	store := NewPGDocumentStore(mock)
	docs, err := store.MatchDocuments(context.Background(), CandidateFilter{
		EmergencyOnly:  true,
		MinAuthority:   3,
		ExcludeUnrated: true,
		AnyKeywords:    []string{"ibuprofen", "warfarin"},
	}, 20)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGDocumentStoreMatchDocumentsNoFilter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT .+ FROM medical_documents ORDER BY id LIMIT \$1`).
		WithArgs(60).
		WillReturnRows(pgxmock.NewRows(documentRowColumns))

	_, err = NewPGDocumentStore(mock).MatchDocuments(context.Background(), CandidateFilter{}, 60)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGDocumentStoreInsertDocuments(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	docs := []Document{
		{Title: "Asthma", Source: "NIH", Content: "Airway inflammation.", Embedding: []float32{1, 2}, MedicalDomain: "pulmonology", SourceFile: "asthma.xml"},
		{Title: "Asthma", Source: "NIH", Content: "Airway inflammation.", SourceFile: "asthma.xml"},
	}
	mock.ExpectExec("INSERT INTO medical_documents").
		WithArgs("Asthma", "NIH", "Airway inflammation.", pgxmock.AnyArg(), "pulmonology", "", pgxmock.AnyArg(),
			false, "", "asthma.xml", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO medical_documents").
		WithArgs("Asthma", "NIH", "Airway inflammation.", pgxmock.AnyArg(), "", "", pgxmock.AnyArg(),
			false, "", "asthma.xml", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	n, err := NewPGDocumentStore(mock).InsertDocuments(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
