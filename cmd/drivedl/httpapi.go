// HTTP-backed implementations of the pkg/providers service interfaces,
// wiring pkg/protonapi's wire structs to a real object-store API over
// pkg/transport. This is wiring code for the demonstration CLI, not part
// of the library contract: an embedding application is expected to supply
// its own RevisionsService/NodesService/AccountService built against
// whatever session and endpoint shape its own deployment uses.
package main

import (
	"context"
	"fmt"

	"github.com/kraklabs/drivedl/pkg/protonapi"
	"github.com/kraklabs/drivedl/pkg/providers"
	"github.com/kraklabs/drivedl/pkg/revision"
)

type httpRevisionsService struct {
	base string
	http providers.HTTPClient
}

func (s *httpRevisionsService) GetRevision(ctx context.Context, uid protonapi.RevisionUID) (revision.Revision, error) {
	var dto protonapi.RevisionDTO
	url := fmt.Sprintf("%s/drive/volumes/%s/nodes/%s/revisions/%s", s.base, uid.VolumeID, uid.NodeID, uid.RevisionID)
	if err := s.http.FetchJSON(ctx, url, &dto); err != nil {
		return revision.Revision{}, err
	}
	return revisionFromDTO(dto), nil
}

func (s *httpRevisionsService) ListBlocks(ctx context.Context, uid protonapi.RevisionUID, anchorID string) (providers.BlockPage, string, error) {
	var page protonapi.BlockListPageDTO
	url := fmt.Sprintf("%s/drive/volumes/%s/nodes/%s/revisions/%s/blocks", s.base, uid.VolumeID, uid.NodeID, uid.RevisionID)
	if anchorID != "" {
		url += "?AnchorID=" + anchorID
	}
	if err := s.http.FetchJSON(ctx, url, &page); err != nil {
		return providers.BlockPage{}, "", err
	}
	blocks := make([]revision.BlockMetadata, len(page.Blocks))
	for i, b := range page.Blocks {
		blocks[i] = blockFromDTO(b)
	}
	return providers.BlockPage{Blocks: blocks, More: page.More}, page.AnchorID, nil
}

func (s *httpRevisionsService) GetBlockToken(ctx context.Context, uid protonapi.RevisionUID, blockIndex int) (revision.BlockMetadata, error) {
	var dto protonapi.BlockTokenDTO
	url := fmt.Sprintf("%s/drive/volumes/%s/nodes/%s/revisions/%s/blocks/%d/token", s.base, uid.VolumeID, uid.NodeID, uid.RevisionID, blockIndex)
	if err := s.http.FetchJSON(ctx, url, &dto); err != nil {
		return revision.BlockMetadata{}, err
	}
	return revision.BlockMetadata{Index: blockIndex, BareURL: dto.BareURL, Token: dto.Token, Hash: dto.Hash}, nil
}

type httpNodesService struct {
	base string
	http providers.HTTPClient
}

func (s *httpNodesService) GetNode(ctx context.Context, uid protonapi.NodeUID) (revision.NodeInfo, error) {
	var dto protonapi.NodeDTO
	url := fmt.Sprintf("%s/drive/volumes/%s/nodes/%s", s.base, uid.VolumeID, uid.NodeID)
	if err := s.http.FetchJSON(ctx, url, &dto); err != nil {
		return revision.NodeInfo{}, err
	}
	return nodeInfoFromDTO(dto), nil
}

func (s *httpNodesService) GetNodeKeys(ctx context.Context, uid protonapi.NodeUID) (protonapi.NodeKeysDTO, error) {
	var dto protonapi.NodeKeysDTO
	url := fmt.Sprintf("%s/drive/volumes/%s/nodes/%s/keys", s.base, uid.VolumeID, uid.NodeID)
	err := s.http.FetchJSON(ctx, url, &dto)
	return dto, err
}

func (s *httpNodesService) GetNodeContentKey(ctx context.Context, uid protonapi.NodeUID) ([]byte, error) {
	var dto protonapi.ContentKeyDTO
	url := fmt.Sprintf("%s/drive/volumes/%s/nodes/%s/contentkey", s.base, uid.VolumeID, uid.NodeID)
	if err := s.http.FetchJSON(ctx, url, &dto); err != nil {
		return nil, err
	}
	return dto.ContentKeyPacket, nil
}

type httpAccountService struct {
	base string
	http providers.HTTPClient
}

func (s *httpAccountService) ListKeys(ctx context.Context) ([]protonapi.AccountKeyDTO, error) {
	var dtos []protonapi.AccountKeyDTO
	url := s.base + "/core/keys"
	err := s.http.FetchJSON(ctx, url, &dtos)
	return dtos, err
}

type httpThumbnailsService struct {
	base string
	http providers.HTTPClient
}

func (s *httpThumbnailsService) ResolveThumbnail(ctx context.Context, uid protonapi.NodeUID, kind revision.ThumbnailType) (string, error) {
	var dto protonapi.ThumbnailResolveDTO
	url := fmt.Sprintf("%s/drive/volumes/%s/nodes/%s/thumbnail?Type=%d", s.base, uid.VolumeID, uid.NodeID, int(kind))
	if err := s.http.FetchJSON(ctx, url, &dto); err != nil {
		return "", err
	}
	return dto.ThumbnailUID, nil
}

func (s *httpThumbnailsService) GetThumbnailTokens(ctx context.Context, thumbnailUIDs []string) (map[string]providers.ThumbnailToken, map[string]error, error) {
	if len(thumbnailUIDs) == 0 {
		return nil, nil, nil
	}
	// The batch endpoint is volume-scoped; the batcher only ever forms a
	// batch out of thumbnails it resolved from nodes it was handed, which
	// in practice share a volume, so the first UID's volume addresses the
	// whole request.
	first, err := protonapi.ParseThumbnailUID(thumbnailUIDs[0])
	if err != nil {
		return nil, nil, err
	}

	req := protonapi.ThumbnailTokensRequestDTO{ThumbnailIDs: thumbnailUIDs}
	var resp protonapi.ThumbnailTokensResponseDTO
	url := fmt.Sprintf("%s/drive/volumes/%s/thumbnails", s.base, first.VolumeID)
	if err := s.http.PostJSON(ctx, url, req, &resp); err != nil {
		return nil, nil, err
	}

	tokens := make(map[string]providers.ThumbnailToken, len(resp.Thumbnails))
	for _, t := range resp.Thumbnails {
		tokens[t.ThumbnailID] = providers.ThumbnailToken{BareURL: t.BareURL, Token: t.Token, Hash: t.Hash}
	}
	errs := make(map[string]error, len(resp.Errors))
	for _, e := range resp.Errors {
		errs[e.ThumbnailID] = fmt.Errorf("thumbnail %s: %s", e.ThumbnailID, e.Error)
	}
	return tokens, errs, nil
}

func nodeInfoFromDTO(dto protonapi.NodeDTO) revision.NodeInfo {
	nodeType := revision.NodeTypeFile
	if dto.Type == int(revision.NodeTypeFolder) {
		nodeType = revision.NodeTypeFolder
	}
	active := revision.ActiveRevision{UID: dto.ActiveRevisionUID}
	if dto.ActiveRevisionError != "" {
		active.Err = fmt.Errorf("%s", dto.ActiveRevisionError)
	}
	return revision.NodeInfo{UID: dto.UID, Type: nodeType, ActiveRevision: active}
}

func revisionFromDTO(dto protonapi.RevisionDTO) revision.Revision {
	thumbs := make([]revision.Thumbnail, len(dto.Thumbnails))
	for i, th := range dto.Thumbnails {
		thumbs[i] = revision.Thumbnail{
			ThumbnailID:  th.ThumbnailID,
			BareURL:      th.BareURL,
			Token:        th.Token,
			Hash:         th.Hash,
			EncSignature: th.EncSignature,
			Size:         th.Size,
		}
	}
	return revision.Revision{
		UID:               dto.UID,
		NodeUID:           dto.NodeUID,
		VolumeID:          dto.VolumeID,
		Size:              dto.Size,
		ClaimedBlockSizes: dto.ClaimedBlockSizes,
		ManifestSignature: revision.Manifest{
			ArmoredSignature: dto.ManifestSignature.ArmoredSignature,
			SignatureEmail:   dto.ManifestSignature.SignatureEmail,
			ContentKeyPacket: dto.ManifestSignature.ContentKeyPacket,
		},
		Thumbnails: thumbs,
		Author: revision.ContentAuthor{
			Email:        dto.SignatureEmail,
			Unverifiable: dto.SignatureEmailUnverifiable,
		},
	}
}

func blockFromDTO(dto protonapi.BlockDTO) revision.BlockMetadata {
	return revision.BlockMetadata{
		Index:          dto.Index,
		BareURL:        dto.BareURL,
		Token:          dto.Token,
		Hash:           dto.Hash,
		EncSignature:   dto.EncSignature,
		SignatureEmail: dto.SignatureEmail,
		Size:           dto.Size,
	}
}
