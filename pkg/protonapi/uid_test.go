package protonapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNodeUID(t *testing.T) {
	got, err := ParseNodeUID("vol1~node1")
	require.NoError(t, err)
	require.Equal(t, NodeUID{VolumeID: "vol1", NodeID: "node1"}, got)
	require.Equal(t, "vol1~node1", got.String())
}

func TestParseNodeUIDMalformed(t *testing.T) {
	cases := []string{"", "vol1", "vol1~node1~rev1", "~node1", "vol1~"}
	for _, c := range cases {
		_, err := ParseNodeUID(c)
		require.Errorf(t, err, "expected error for %q", c)
	}
}

func TestParseRevisionUID(t *testing.T) {
	got, err := ParseRevisionUID("vol1~node1~rev1")
	require.NoError(t, err)
	want := RevisionUID{VolumeID: "vol1", NodeID: "node1", RevisionID: "rev1"}
	require.Equal(t, want, got)
	require.Equal(t, NodeUID{VolumeID: "vol1", NodeID: "node1"}, got.NodeUID())
}

func TestParseThumbnailUID(t *testing.T) {
	got, err := ParseThumbnailUID("vol1~node1~thumb1")
	require.NoError(t, err)
	require.Equal(t, "vol1~node1~thumb1", got.String())
}
