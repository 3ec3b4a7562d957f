// Package protonapi declares the wire JSON shapes exchanged with the remote
// object-store API and the identifier grammar used to address volumes,
// nodes, revisions, and thumbnails. It has no knowledge of pagination,
// concurrency, or cryptography; those live in pkg/blockstream, pkg/pipeline,
// and pkg/revcrypto respectively, all built on top of the types here.
package protonapi

// BlockDTO is the wire shape of one block entry in a revision's block
// listing response.
type BlockDTO struct {
	Index          int    `json:"Index"`
	BareURL        string `json:"BareURL"`
	Token          string `json:"Token"`
	Hash           string `json:"Hash"`
	EncSignature   string `json:"EncSignature"`
	SignatureEmail string `json:"SignatureEmail,omitempty"`
	Size           int64  `json:"Size,omitempty"`
}

// ThumbnailDTO is the wire shape of one thumbnail entry attached to a
// revision.
type ThumbnailDTO struct {
	ThumbnailID  string `json:"ThumbnailID"`
	BareURL      string `json:"BareURL"`
	Token        string `json:"Token"`
	Hash         string `json:"Hash"`
	EncSignature string `json:"EncSignature"`
	Size         int64  `json:"Size,omitempty"`
}

// ManifestSignatureDTO is the wire shape of a revision's content manifest
// signature block.
type ManifestSignatureDTO struct {
	ArmoredSignature string `json:"ArmoredSignature"`
	SignatureEmail   string `json:"SignatureEmail,omitempty"`
	ContentKeyPacket []byte `json:"ContentKeyPacket,omitempty"`
}

// RevisionDTO is the wire shape of a revision as returned by the revisions
// service, before any block listing has been fetched.
type RevisionDTO struct {
	UID               string               `json:"UID"`
	NodeUID           string               `json:"NodeUID"`
	VolumeID          string               `json:"VolumeID"`
	Size              int64                `json:"Size"`
	ManifestSignature ManifestSignatureDTO `json:"ManifestSignature"`
	Thumbnails        []ThumbnailDTO       `json:"Thumbnails,omitempty"`
	SignatureEmail    string               `json:"SignatureEmail,omitempty"`
	SignatureEmailUnverifiable bool        `json:"SignatureEmailUnverifiable,omitempty"`
	// ClaimedBlockSizes is the uploader-declared ordered list of per-block
	// plaintext sizes, used by the seekable stream to translate an offset
	// into a block index without assuming a uniform block size.
	ClaimedBlockSizes []int64              `json:"ClaimedBlockSizes,omitempty"`
	CreatedTime       int64                `json:"CreatedTime"`
}

// BlockListPageDTO is one page of a paginated block listing response.
type BlockListPageDTO struct {
	Blocks       []BlockDTO `json:"Blocks"`
	More         bool       `json:"More"`
	AnchorID     string     `json:"AnchorID,omitempty"`
}

// BlockTokenDTO is the response to a single-block token refresh request.
type BlockTokenDTO struct {
	BareURL string `json:"BareURL"`
	Token   string `json:"Token"`
	Hash    string `json:"Hash"`
}

// NodeKeysDTO carries the armored key material needed to unlock a node's
// content session key.
type NodeKeysDTO struct {
	ArmoredKey       string `json:"Key"`
	Passphrase       string `json:"Passphrase"`
	PassphraseSignature string `json:"PassphraseSignature,omitempty"`
}

// AccountKeyDTO is one armored private key belonging to the account,
// returned by the account service for signature verification and content
// key unwrapping.
type AccountKeyDTO struct {
	Fingerprint string `json:"Fingerprint"`
	ArmoredKey  string `json:"PrivateKey"`
	Primary     bool   `json:"Primary"`
}

// NodeDTO is the wire shape of a node's own metadata, independent of any
// specific revision: its type and which revision (if any) is currently
// active.
type NodeDTO struct {
	UID                string `json:"UID"`
	Type               int    `json:"Type"`
	ActiveRevisionUID  string `json:"ActiveRevisionUID,omitempty"`
	ActiveRevisionError string `json:"ActiveRevisionError,omitempty"`
}

// ContentKeyDTO carries the content key packet guarding a node's own
// content session key, addressed by node rather than by revision.
type ContentKeyDTO struct {
	ContentKeyPacket []byte `json:"ContentKeyPacket"`
}

// ThumbnailResolveDTO is the response to resolving a node's thumbnail of a
// given kind to a thumbnail UID.
type ThumbnailResolveDTO struct {
	ThumbnailUID string `json:"ThumbnailUID"`
}

// ThumbnailTokensRequestDTO is the request body for a batch thumbnail-token
// fetch.
type ThumbnailTokensRequestDTO struct {
	ThumbnailIDs []string `json:"ThumbnailIDs"`
}

// ThumbnailTokenDTO is one successfully resolved entry in a batched
// thumbnail-token response.
type ThumbnailTokenDTO struct {
	ThumbnailID string `json:"ThumbnailID"`
	BareURL     string `json:"BareURL"`
	Token       string `json:"Token"`
	Hash        string `json:"Hash,omitempty"`
}

// ThumbnailTokenErrorDTO is one failed entry in a batched thumbnail-token
// response.
type ThumbnailTokenErrorDTO struct {
	ThumbnailID string `json:"ThumbnailID"`
	Error       string `json:"Error"`
}

// ThumbnailTokensResponseDTO is the wire shape of a batch thumbnail-token
// fetch: a POST to /drive/volumes/{v}/thumbnails with a list of thumbnail
// IDs, returning a token per resolved ID and an error per failed one.
type ThumbnailTokensResponseDTO struct {
	Thumbnails []ThumbnailTokenDTO      `json:"Thumbnails"`
	Errors     []ThumbnailTokenErrorDTO `json:"Errors,omitempty"`
}
