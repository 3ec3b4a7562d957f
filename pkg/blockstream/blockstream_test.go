package blockstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/drivedl/pkg/protonapi"
	"github.com/kraklabs/drivedl/pkg/providers"
	"github.com/kraklabs/drivedl/pkg/providers/providerstest"
	"github.com/kraklabs/drivedl/pkg/revision"
)

func TestIteratorWalksMultiplePagesInOrder(t *testing.T) {
	svc := providerstest.NewRevisionsService()
	uid := protonapi.RevisionUID{VolumeID: "v", NodeID: "n", RevisionID: "r"}
	key := uid.String()
	svc.Pages[key] = []providers.BlockPage{
		{Blocks: []revision.BlockMetadata{{Index: 1}, {Index: 2}}, More: true},
		{Blocks: []revision.BlockMetadata{{Index: 3}}, More: false},
	}

	it := NewIterator(svc, uid)
	var got []int
	for {
		meta, ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, meta.Index)
	}
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestIteratorRejectsDuplicateIndex(t *testing.T) {
	svc := providerstest.NewRevisionsService()
	uid := protonapi.RevisionUID{VolumeID: "v", NodeID: "n", RevisionID: "r"}
	key := uid.String()
	svc.Pages[key] = []providers.BlockPage{
		{Blocks: []revision.BlockMetadata{{Index: 1}, {Index: 1}}, More: false},
	}

	it := NewIterator(svc, uid)
	_, _, err := it.Next(context.Background())
	require.NoError(t, err)
	_, _, err = it.Next(context.Background())
	require.Error(t, err)
}

func TestIteratorRejectsRegressingIndex(t *testing.T) {
	svc := providerstest.NewRevisionsService()
	uid := protonapi.RevisionUID{VolumeID: "v", NodeID: "n", RevisionID: "r"}
	key := uid.String()
	svc.Pages[key] = []providers.BlockPage{
		{Blocks: []revision.BlockMetadata{{Index: 5}, {Index: 3}}, More: false},
	}

	it := NewIterator(svc, uid)
	_, _, err := it.Next(context.Background())
	require.NoError(t, err)
	_, _, err = it.Next(context.Background())
	require.Error(t, err)
}

func TestMergeRefreshedTokenKeepsSignatureFields(t *testing.T) {
	original := revision.BlockMetadata{
		Index:          4,
		BareURL:        "https://old",
		Token:          "old-token",
		Hash:           "old-hash",
		EncSignature:   "sig",
		SignatureEmail: "author@example.com",
		Size:           1024,
	}
	refreshed := revision.BlockMetadata{
		BareURL: "https://new",
		Token:   "new-token",
		Hash:    "new-hash",
	}

	merged := MergeRefreshedToken(original, refreshed)
	require.Equal(t, "https://new", merged.BareURL)
	require.Equal(t, "new-token", merged.Token)
	require.Equal(t, "new-hash", merged.Hash)
	require.Equal(t, "sig", merged.EncSignature)
	require.Equal(t, "author@example.com", merged.SignatureEmail)
	require.EqualValues(t, 1024, merged.Size)
}
