package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataset_ZeroValue(t *testing.T) {
	var ds *Dataset
	assert.Equal(t, 0, ds.Len())
	assert.Nil(t, ds.Records())
	_, ok := ds.Get("x")
	assert.False(t, ok)
	assert.Equal(t, 0, ds.Clone().Len())
}

func TestDataset_UpsertKeepsOrderAndUniqueness(t *testing.T) {
	ds := &Dataset{}
	assert.True(t, ds.Upsert(ExtractedRecord{DocumentLink: "a", BrandName: "A1"}))
	assert.True(t, ds.Upsert(ExtractedRecord{DocumentLink: "b", BrandName: "B"}))
	assert.False(t, ds.Upsert(ExtractedRecord{DocumentLink: "a", BrandName: "A2"}))

	recs := ds.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "A2", recs[0].BrandName)
	assert.Equal(t, "B", recs[1].BrandName)
}

func TestNewDataset_CollapsesDuplicateKeys(t *testing.T) {
	ds := NewDataset([]ExtractedRecord{
		{DocumentLink: "a", BrandName: "first"},
		{DocumentLink: "a", BrandName: "second"},
	})
	require.Equal(t, 1, ds.Len())
	got, ok := ds.Get("a")
	require.True(t, ok)
	assert.Equal(t, "second", got.BrandName)
}

func TestDataset_CloneIsIndependent(t *testing.T) {
	ds := NewDataset([]ExtractedRecord{{DocumentLink: "a", BrandName: "A"}})
	cp := ds.Clone()
	cp.Upsert(ExtractedRecord{DocumentLink: "a", BrandName: "changed"})
	cp.Upsert(ExtractedRecord{DocumentLink: "b"})

	got, _ := ds.Get("a")
	assert.Equal(t, "A", got.BrandName)
	assert.Equal(t, 1, ds.Len())
	assert.Equal(t, 2, cp.Len())
}

func TestDataset_RecordsReturnsCopy(t *testing.T) {
	ds := NewDataset([]ExtractedRecord{{DocumentLink: "a", BrandName: "A"}})
	recs := ds.Records()
	recs[0].BrandName = "mutated"

	got, _ := ds.Get("a")
	assert.Equal(t, "A", got.BrandName)
}
