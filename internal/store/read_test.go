package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/otri/internal/atom"
)

func TestFetchAllMetadataAtoms_OnlyMetadataKind(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.InsertRaw(ctx, obj(atom.O("ticker", atom.String("AAPL")), atom.O("close", atom.Float(1.5))))
	require.NoError(t, err)
	m1, err := s.InsertMetadata(ctx, obj(atom.O("ticker", atom.String("AAPL")), atom.O("name", atom.String("Apple"))))
	require.NoError(t, err)
	m2, err := s.InsertMetadata(ctx, obj(atom.O("ticker", atom.String("AAPL")), atom.O("exchange", atom.String("NASDAQ"))))
	require.NoError(t, err)

	atoms, err := s.FetchAllMetadataAtoms(ctx)
	require.NoError(t, err)
	require.Len(t, atoms, 2)

	assert.Equal(t, m1, atoms[0].ID)
	assert.Equal(t, m2, atoms[1].ID)
	for _, a := range atoms {
		assert.Equal(t, atom.KindMetadata, a.Kind)
	}
	assert.Equal(t, atom.String("Apple"), atoms[0].Value["name"])
}

func TestFetchAllMetadataAtoms_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	atoms, err := s.FetchAllMetadataAtoms(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, atoms)
	assert.Empty(t, atoms)
}

func TestReadRawAtoms_PreservesValues(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	v := obj(
		atom.O("ticker", atom.String("AAPL")),
		atom.O("bar", atom.NewObject(atom.O("open", atom.Float(188.5)), atom.O("volume", atom.Int(51234567)))),
		atom.O("flags", atom.NewArray(atom.Bool(true), atom.Null{})),
	)
	_, err := s.InsertRaw(ctx, v)
	require.NoError(t, err)

	atoms, err := s.ReadRawAtoms(ctx, atom.KindRaw)
	require.NoError(t, err)
	require.Len(t, atoms, 1)
	assert.True(t, atom.Equal(v, atoms[0].Value))
}

func TestReadCanonicalMetadata_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadCanonicalMetadata(context.Background(), "NOPE")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListTickers_Sorted(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, ticker := range []string{"MSFT", "AAPL", "GOOG"} {
		_, err := s.UpsertCanonicalMetadata(ctx, ticker, atom.Object{})
		require.NoError(t, err)
	}

	tickers, err := s.ListTickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "GOOG", "MSFT"}, tickers)

	records, err := s.ReadAllCanonicalMetadata(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, atom.String("AAPL"), records[0].Value["ticker"])
	assert.Equal(t, atom.String("MSFT"), records[2].Value["ticker"])
}
