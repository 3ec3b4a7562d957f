// Package providerstest supplies hand-written in-memory fakes for the
// provider interfaces in pkg/providers: small fakes purpose-built per test
// over a generated mocking framework.
package providerstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/kraklabs/drivedl/pkg/direrrors"
	"github.com/kraklabs/drivedl/pkg/protonapi"
	"github.com/kraklabs/drivedl/pkg/providers"
	"github.com/kraklabs/drivedl/pkg/revision"
)

// Blob is one fake object-store entry: the bytes FetchBlob should return
// for a given URL, and the number of times it should fail with a transient
// error before succeeding.
type Blob struct {
	Data       []byte
	FailTimes  int
	NotFound   bool
}

// HTTPClient is an in-memory fake of providers.HTTPClient keyed by URL.
type HTTPClient struct {
	mu      sync.Mutex
	Blobs   map[string]*Blob
	JSON    map[string]any
	Calls   map[string]int
}

// NewHTTPClient builds an empty fake HTTP client.
func NewHTTPClient() *HTTPClient {
	return &HTTPClient{
		Blobs: make(map[string]*Blob),
		JSON:  make(map[string]any),
		Calls: make(map[string]int),
	}
}

func (c *HTTPClient) FetchBlob(ctx context.Context, url string, onProgress func(n int64)) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls[url]++
	b, ok := c.Blobs[url]
	if !ok {
		return nil, fmt.Errorf("providerstest: no fake blob registered for %s", url)
	}
	if b.NotFound {
		return nil, direrrors.New(direrrors.AuthExpired, "providerstest: 404 fetching "+url)
	}
	if c.Calls[url] <= b.FailTimes {
		return nil, direrrors.New(direrrors.Transport, "providerstest: transient failure fetching "+url)
	}
	if onProgress != nil {
		onProgress(int64(len(b.Data)))
	}
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out, nil
}

func (c *HTTPClient) FetchJSON(ctx context.Context, url string, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls[url]++
	v, ok := c.JSON[url]
	if !ok {
		return fmt.Errorf("providerstest: no fake JSON registered for %s", url)
	}
	switch dst := out.(type) {
	case *protonapi.BlockListPageDTO:
		*dst = v.(protonapi.BlockListPageDTO)
	default:
		return fmt.Errorf("providerstest: unsupported FetchJSON target %T", out)
	}
	return nil
}

// PostJSON is not exercised by this module's tests (the thumbnail batcher
// talks to providers.ThumbnailsService, not HTTPClient, in tests); it
// exists so HTTPClient keeps satisfying providers.HTTPClient.
func (c *HTTPClient) PostJSON(ctx context.Context, url string, body, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls[url]++
	v, ok := c.JSON[url]
	if !ok {
		return fmt.Errorf("providerstest: no fake JSON registered for %s", url)
	}
	switch dst := out.(type) {
	case *protonapi.BlockListPageDTO:
		*dst = v.(protonapi.BlockListPageDTO)
	default:
		return fmt.Errorf("providerstest: unsupported PostJSON target %T", out)
	}
	return nil
}

// RevisionsService is an in-memory fake of providers.RevisionsService.
type RevisionsService struct {
	mu          sync.Mutex
	Revisions   map[string]revision.Revision
	Pages       map[string][]providers.BlockPage
	Tokens      map[string]map[int]revision.BlockMetadata
	pageCursor  map[string]int
}

// NewRevisionsService builds an empty fake revisions service.
func NewRevisionsService() *RevisionsService {
	return &RevisionsService{
		Revisions:  make(map[string]revision.Revision),
		Pages:      make(map[string][]providers.BlockPage),
		Tokens:     make(map[string]map[int]revision.BlockMetadata),
		pageCursor: make(map[string]int),
	}
}

func (s *RevisionsService) GetRevision(ctx context.Context, uid protonapi.RevisionUID) (revision.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.Revisions[uid.String()]
	if !ok {
		return revision.Revision{}, fmt.Errorf("providerstest: no fake revision for %s", uid)
	}
	return r, nil
}

// ListBlocks returns the next registered page for uid, in the order it was
// appended via Pages. anchorID is ignored: each call advances a per-revision
// cursor kept by the fake itself.
func (s *RevisionsService) ListBlocks(ctx context.Context, uid protonapi.RevisionUID, anchorID string) (providers.BlockPage, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := uid.String()
	pages := s.Pages[key]
	idx := s.pageCursor[key]
	if idx >= len(pages) {
		return providers.BlockPage{}, "", fmt.Errorf("providerstest: no more fake pages for %s", uid)
	}
	page := pages[idx]
	s.pageCursor[key] = idx + 1
	next := ""
	if page.More {
		next = fmt.Sprintf("%s-anchor-%d", key, idx+1)
	}
	return page, next, nil
}

func (s *RevisionsService) GetBlockToken(ctx context.Context, uid protonapi.RevisionUID, blockIndex int) (revision.BlockMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byIndex, ok := s.Tokens[uid.String()]
	if !ok {
		return revision.BlockMetadata{}, fmt.Errorf("providerstest: no fake tokens for %s", uid)
	}
	meta, ok := byIndex[blockIndex]
	if !ok {
		return revision.BlockMetadata{}, fmt.Errorf("providerstest: no fake token for block %d", blockIndex)
	}
	return meta, nil
}

// NodesService is an in-memory fake of providers.NodesService.
type NodesService struct {
	Keys        map[string]protonapi.NodeKeysDTO
	Nodes       map[string]revision.NodeInfo
	ContentKeys map[string][]byte
}

// NewNodesService builds an empty fake nodes service.
func NewNodesService() *NodesService {
	return &NodesService{
		Keys:        make(map[string]protonapi.NodeKeysDTO),
		Nodes:       make(map[string]revision.NodeInfo),
		ContentKeys: make(map[string][]byte),
	}
}

func (s *NodesService) GetNode(ctx context.Context, uid protonapi.NodeUID) (revision.NodeInfo, error) {
	n, ok := s.Nodes[uid.String()]
	if !ok {
		return revision.NodeInfo{}, fmt.Errorf("providerstest: no fake node for %s", uid)
	}
	return n, nil
}

func (s *NodesService) GetNodeKeys(ctx context.Context, uid protonapi.NodeUID) (protonapi.NodeKeysDTO, error) {
	k, ok := s.Keys[uid.String()]
	if !ok {
		return protonapi.NodeKeysDTO{}, fmt.Errorf("providerstest: no fake keys for %s", uid)
	}
	return k, nil
}

func (s *NodesService) GetNodeContentKey(ctx context.Context, uid protonapi.NodeUID) ([]byte, error) {
	k, ok := s.ContentKeys[uid.String()]
	if !ok {
		return nil, fmt.Errorf("providerstest: no fake content key for %s", uid)
	}
	return k, nil
}

// AccountService is an in-memory fake of providers.AccountService.
type AccountService struct {
	AccountKeys []protonapi.AccountKeyDTO
}

func (s *AccountService) ListKeys(ctx context.Context) ([]protonapi.AccountKeyDTO, error) {
	return s.AccountKeys, nil
}

// ThumbnailsService is an in-memory fake of providers.ThumbnailsService.
type ThumbnailsService struct {
	mu sync.Mutex
	// Thumbnails maps a node UID to the thumbnail UID ResolveThumbnail
	// should return for it.
	Thumbnails map[string]string
	// ResolveErrs maps a node UID to the error ResolveThumbnail should
	// return for it instead of a successful resolution.
	ResolveErrs map[string]error
	// Tokens maps a thumbnail UID to the token GetThumbnailTokens should
	// return for it.
	Tokens map[string]providers.ThumbnailToken
	// TokenErrs maps a thumbnail UID to the per-UID error GetThumbnailTokens
	// should report for it instead of a token.
	TokenErrs map[string]error
	Calls     int
}

// NewThumbnailsService builds an empty fake thumbnails service.
func NewThumbnailsService() *ThumbnailsService {
	return &ThumbnailsService{
		Thumbnails:  make(map[string]string),
		ResolveErrs: make(map[string]error),
		Tokens:      make(map[string]providers.ThumbnailToken),
		TokenErrs:   make(map[string]error),
	}
}

func (s *ThumbnailsService) ResolveThumbnail(ctx context.Context, uid protonapi.NodeUID, kind revision.ThumbnailType) (string, error) {
	key := uid.String()
	if err, ok := s.ResolveErrs[key]; ok {
		return "", err
	}
	id, ok := s.Thumbnails[key]
	if !ok {
		return "", fmt.Errorf("providerstest: no fake thumbnail for %s", uid)
	}
	return id, nil
}

func (s *ThumbnailsService) GetThumbnailTokens(ctx context.Context, thumbnailUIDs []string) (map[string]providers.ThumbnailToken, map[string]error, error) {
	s.mu.Lock()
	s.Calls++
	s.mu.Unlock()

	tokens := make(map[string]providers.ThumbnailToken)
	errs := make(map[string]error)
	for _, id := range thumbnailUIDs {
		if err, ok := s.TokenErrs[id]; ok {
			errs[id] = err
			continue
		}
		if tok, ok := s.Tokens[id]; ok {
			tokens[id] = tok
		}
	}
	return tokens, errs, nil
}
