package coldfront

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/oauth2/clientcredentials"
)

// Allocation is the subset of allocation attributes the pipeline needs to
// enrich usage records.
type Allocation struct {
	ProjectID       string
	ProjectName     string
	PI              string
	InstitutionCode string
}

// Source supplies allocations keyed by project ID.
type Source interface {
	Allocations(ctx context.Context) (map[string]Allocation, error)
}

type apiAllocation struct {
	Project struct {
		PI string `json:"pi"`
	} `json:"project"`
	Attributes map[string]string `json:"attributes"`
}

const (
	attrProjectID       = "Allocated Project ID"
	attrProjectName     = "Allocated Project Name"
	attrInstitutionCode = "Institution-Specific Code"
)

func decodeAllocations(r io.Reader) (map[string]Allocation, error) {
	var raw []apiAllocation
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode allocation data: %w", err)
	}
	allocations := make(map[string]Allocation, len(raw))
	for _, a := range raw {
		id := a.Attributes[attrProjectID]
		if id == "" {
			continue
		}
		allocations[id] = Allocation{
			ProjectID:       id,
			ProjectName:     a.Attributes[attrProjectName],
			PI:              a.Project.PI,
			InstitutionCode: a.Attributes[attrInstitutionCode],
		}
	}
	return allocations, nil
}

// APIClient fetches allocations from the coldfront-plugin-api endpoint using
// a Keycloak client-credentials token. Responses are memoized in a small LRU
// keyed by endpoint so repeated stage runs within one process don't re-fetch;
// the cache lives and dies with the client.
type APIClient struct {
	endpoint   string
	httpClient *http.Client
	cache      *lru.Cache[string, map[string]Allocation]
}

// APIConfig configures an APIClient.
type APIConfig struct {
	Endpoint     string
	TokenURL     string
	ClientID     string
	ClientSecret string
}

func NewAPIClient(ctx context.Context, cfg APIConfig) (*APIClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("coldfront API requires KEYCLOAK_CLIENT_ID and KEYCLOAK_CLIENT_SECRET")
	}
	creds := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	cache, err := lru.New[string, map[string]Allocation](4)
	if err != nil {
		return nil, err
	}
	return &APIClient{
		endpoint:   cfg.Endpoint,
		httpClient: creds.Client(ctx),
		cache:      cache,
	}, nil
}

func (c *APIClient) Allocations(ctx context.Context) (map[string]Allocation, error) {
	if cached, ok := c.cache.Get(c.endpoint); ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build allocation request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch allocations: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch allocations: unexpected status %s", resp.Status)
	}

	allocations, err := decodeAllocations(resp.Body)
	if err != nil {
		return nil, err
	}
	c.cache.Add(c.endpoint, allocations)
	return allocations, nil
}

// FileSource reads an allocation dump in the coldfront-plugin-api response
// format. The reader is decoded once, on first use; later calls return the
// same map.
type FileSource struct {
	r io.Reader

	once        sync.Once
	allocations map[string]Allocation
	err         error
}

func NewFileSource(r io.Reader) *FileSource {
	return &FileSource{r: r}
}

func (s *FileSource) Allocations(ctx context.Context) (map[string]Allocation, error) {
	s.once.Do(func() {
		s.allocations, s.err = decodeAllocations(s.r)
	})
	return s.allocations, s.err
}
