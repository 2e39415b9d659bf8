package curseforge

import (
	"context"
	"fmt"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/httpclient"
)

// LegacyIDThreshold marks the end of the legacy/other-game id range; CF
// ids below it are rejected at every entry point.
const LegacyIDThreshold = 30000

// IsLegacyID reports whether id should be rejected as a non-Minecraft
// legacy/other-game id.
func IsLegacyID(id int) bool {
	return id < LegacyIDThreshold
}

// GameID is the CurseForge Minecraft game id, used on every categories and
// fingerprint call.
const GameID = 432

// Adapter wraps an httpclient.Client with CurseForge's typed endpoints.
type Adapter struct {
	http    *httpclient.Client
	baseURL string
}

// New builds an Adapter rooted at baseURL (config.CurseforgeAPI).
func New(http *httpclient.Client, baseURL string) *Adapter {
	return &Adapter{http: http, baseURL: baseURL}
}

type modEnvelope struct {
	Data Mod `json:"data"`
}

// GetMod fetches a single mod's metadata.
func (a *Adapter) GetMod(ctx context.Context, modID int) (Mod, error) {
	var env modEnvelope
	url := fmt.Sprintf("%s/v1/mods/%d", a.baseURL, modID)
	if err := a.http.GetJSON(ctx, url, &env); err != nil {
		return Mod{}, err
	}
	return env.Data, nil
}

// GetModFiles fetches one page of a mod's file list.
func (a *Adapter) GetModFiles(ctx context.Context, modID, index, pageSize int) (FilesResponse, error) {
	var res FilesResponse
	url := fmt.Sprintf("%s/v1/mods/%d/files?index=%d&pageSize=%d", a.baseURL, modID, index, pageSize)
	if err := a.http.GetJSON(ctx, url, &res); err != nil {
		return FilesResponse{}, err
	}
	return res, nil
}

type multiModsRequest struct {
	ModIDs []int `json:"modIds"`
}

type multiModsEnvelope struct {
	Data []Mod `json:"data"`
}

// GetMultiMods bulk-fetches mod metadata; ids unknown to upstream are
// simply absent from the response.
func (a *Adapter) GetMultiMods(ctx context.Context, modIDs []int) ([]Mod, error) {
	var env multiModsEnvelope
	url := fmt.Sprintf("%s/v1/mods", a.baseURL)
	if err := a.http.PostJSON(ctx, url, multiModsRequest{ModIDs: modIDs}, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

type multiFilesRequest struct {
	FileIDs []int `json:"fileIds"`
}

type multiFilesEnvelope struct {
	Data []File `json:"data"`
}

// GetMultiFiles bulk-fetches file metadata by file id.
func (a *Adapter) GetMultiFiles(ctx context.Context, fileIDs []int) ([]File, error) {
	var env multiFilesEnvelope
	url := fmt.Sprintf("%s/v1/mods/files", a.baseURL)
	if err := a.http.PostJSON(ctx, url, multiFilesRequest{FileIDs: fileIDs}, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

type multiFingerprintsRequest struct {
	Fingerprints []int64 `json:"fingerprints"`
}

// GetMultiFingerprints resolves fingerprints via the game-scoped
// /v1/fingerprints/{gameId} form.
func (a *Adapter) GetMultiFingerprints(ctx context.Context, fingerprints []int64) (FingerprintsResponse, error) {
	var res FingerprintsResponse
	url := fmt.Sprintf("%s/v1/fingerprints/%d", a.baseURL, GameID)
	if err := a.http.PostJSON(ctx, url, multiFingerprintsRequest{Fingerprints: fingerprints}, &res); err != nil {
		return FingerprintsResponse{}, err
	}
	return res, nil
}

type categoriesEnvelope struct {
	Data []Category `json:"data"`
}

// GetCategories fetches the category enumeration, optionally scoped to a
// single class or to classes only.
func (a *Adapter) GetCategories(ctx context.Context, gameID int, classID int, classOnly bool) ([]Category, error) {
	url := fmt.Sprintf("%s/v1/categories?gameId=%d", a.baseURL, gameID)
	if classID != 0 {
		url += fmt.Sprintf("&classId=%d", classID)
	} else if classOnly {
		url += "&classOnly=true"
	}
	var env categoriesEnvelope
	if err := a.http.GetJSON(ctx, url, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Search fetches one page of the sorted mod listing, used by the
// new-project discovery walk.
func (a *Adapter) Search(ctx context.Context, gameID, classID, index, pageSize int, sortField SortField, sortOrder SortOrder) (SearchResponse, error) {
	var res SearchResponse
	url := fmt.Sprintf("%s/v1/mods/search?gameId=%d&classId=%d&index=%d&pageSize=%d&sortField=%s&sortOrder=%s",
		a.baseURL, gameID, classID, index, pageSize, sortField, sortOrder)
	if err := a.http.GetJSON(ctx, url, &res); err != nil {
		return SearchResponse{}, err
	}
	return res, nil
}
