package modrinth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/httpclient"
)

// Adapter wraps an httpclient.Client with Modrinth's typed endpoints.
type Adapter struct {
	http    *httpclient.Client
	baseURL string
}

// New builds an Adapter rooted at baseURL (config.ModrinthAPI).
func New(http *httpclient.Client, baseURL string) *Adapter {
	return &Adapter{http: http, baseURL: baseURL}
}

// GetProject fetches a single project's metadata.
func (a *Adapter) GetProject(ctx context.Context, projectID string) (Project, error) {
	var project Project
	url := fmt.Sprintf("%s/v2/project/%s", a.baseURL, projectID)
	if err := a.http.GetJSON(ctx, url, &project); err != nil {
		return Project{}, err
	}
	return project, nil
}

// GetProjectVersions fetches a project's complete version list in a
// single call; Modrinth does not paginate this endpoint.
func (a *Adapter) GetProjectVersions(ctx context.Context, projectID string) ([]Version, error) {
	var versions []Version
	url := fmt.Sprintf("%s/v2/project/%s/version", a.baseURL, projectID)
	if err := a.http.GetJSON(ctx, url, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// GetMultiProjects bulk-fetches project metadata; ids unknown to upstream
// are simply absent from the response.
func (a *Adapter) GetMultiProjects(ctx context.Context, ids []string) ([]Project, error) {
	encoded, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	var projects []Project
	url := fmt.Sprintf("%s/v2/projects?ids=%s", a.baseURL, string(encoded))
	if err := a.http.GetJSON(ctx, url, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// GetMultiVersions bulk-fetches version metadata by version id.
func (a *Adapter) GetMultiVersions(ctx context.Context, ids []string) ([]Version, error) {
	encoded, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	var versions []Version
	url := fmt.Sprintf("%s/v2/versions?ids=%s", a.baseURL, string(encoded))
	if err := a.http.GetJSON(ctx, url, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

type multiHashesRequest struct {
	Hashes    []string      `json:"hashes"`
	Algorithm HashAlgorithm `json:"algorithm"`
}

// GetMultiHashes resolves a set of file hashes of the given algorithm to
// their version records, keyed by the input hash string.
func (a *Adapter) GetMultiHashes(ctx context.Context, hashes []string, algorithm HashAlgorithm) (map[string]Version, error) {
	var out map[string]Version
	url := fmt.Sprintf("%s/v2/version_files", a.baseURL)
	if err := a.http.PostJSON(ctx, url, multiHashesRequest{Hashes: hashes, Algorithm: algorithm}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCategories fetches the full category enumeration.
func (a *Adapter) GetCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	url := fmt.Sprintf("%s/v2/tag/category", a.baseURL)
	if err := a.http.GetJSON(ctx, url, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// GetLoaders fetches the full loader enumeration.
func (a *Adapter) GetLoaders(ctx context.Context) ([]Loader, error) {
	var loaders []Loader
	url := fmt.Sprintf("%s/v2/tag/loader", a.baseURL)
	if err := a.http.GetJSON(ctx, url, &loaders); err != nil {
		return nil, err
	}
	return loaders, nil
}

// GetGameVersions fetches the full game-version enumeration.
func (a *Adapter) GetGameVersions(ctx context.Context) ([]GameVersion, error) {
	var versions []GameVersion
	url := fmt.Sprintf("%s/v2/tag/game_version", a.baseURL)
	if err := a.http.GetJSON(ctx, url, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// Search fetches one page of the sorted project listing, used by the
// new-project discovery walk.
func (a *Adapter) Search(ctx context.Context, query string, offset, limit int, index string) (SearchResponse, error) {
	var res SearchResponse
	url := fmt.Sprintf("%s/v2/search?query=%s&offset=%d&limit=%d&index=%s", a.baseURL, query, offset, limit, index)
	if err := a.http.GetJSON(ctx, url, &res); err != nil {
		return SearchResponse{}, err
	}
	return res, nil
}
