package protonapi

import (
	"fmt"
	"strings"
)

// NodeUID splits a node identifier into its volume and node components.
// Wire form: "volumeID~nodeID".
type NodeUID struct {
	VolumeID string
	NodeID   string
}

// RevisionUID splits a revision identifier into its volume, node, and
// revision components. Wire form: "volumeID~nodeID~revisionID".
type RevisionUID struct {
	VolumeID   string
	NodeID     string
	RevisionID string
}

// ThumbnailUID splits a thumbnail identifier into its volume, node, and
// thumbnail components. Wire form: "volumeID~nodeID~thumbnailID".
type ThumbnailUID struct {
	VolumeID    string
	NodeID      string
	ThumbnailID string
}

// ParseNodeUID splits a two-part UID. Returns an error if uid does not have
// exactly two "~"-separated parts.
func ParseNodeUID(uid string) (NodeUID, error) {
	parts := strings.Split(uid, "~")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return NodeUID{}, fmt.Errorf("protonapi: malformed node UID %q: want volume~node", uid)
	}
	return NodeUID{VolumeID: parts[0], NodeID: parts[1]}, nil
}

// ParseRevisionUID splits a three-part UID. Returns an error if uid does not
// have exactly three "~"-separated parts.
func ParseRevisionUID(uid string) (RevisionUID, error) {
	parts := strings.Split(uid, "~")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return RevisionUID{}, fmt.Errorf("protonapi: malformed revision UID %q: want volume~node~revision", uid)
	}
	return RevisionUID{VolumeID: parts[0], NodeID: parts[1], RevisionID: parts[2]}, nil
}

// ParseThumbnailUID splits a three-part UID addressing a thumbnail.
func ParseThumbnailUID(uid string) (ThumbnailUID, error) {
	parts := strings.Split(uid, "~")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return ThumbnailUID{}, fmt.Errorf("protonapi: malformed thumbnail UID %q: want volume~node~thumbnail", uid)
	}
	return ThumbnailUID{VolumeID: parts[0], NodeID: parts[1], ThumbnailID: parts[2]}, nil
}

// String reassembles the wire form of a NodeUID.
func (u NodeUID) String() string { return u.VolumeID + "~" + u.NodeID }

// String reassembles the wire form of a RevisionUID.
func (u RevisionUID) String() string {
	return u.VolumeID + "~" + u.NodeID + "~" + u.RevisionID
}

// String reassembles the wire form of a ThumbnailUID.
func (u ThumbnailUID) String() string {
	return u.VolumeID + "~" + u.NodeID + "~" + u.ThumbnailID
}

// NodeUID returns the node-level UID a RevisionUID was derived from.
func (u RevisionUID) NodeUID() NodeUID {
	return NodeUID{VolumeID: u.VolumeID, NodeID: u.NodeID}
}

// Revision builds the RevisionUID naming revisionID within this node,
// used to turn a node's resolved active-revision ID into the identifier
// the revisions service expects.
func (u NodeUID) Revision(revisionID string) RevisionUID {
	return RevisionUID{VolumeID: u.VolumeID, NodeID: u.NodeID, RevisionID: revisionID}
}
