// Package modrinth is the typed adapter over the Modrinth catalog API.
// Raw JSON is decoded into the DTOs here at the adapter boundary; only
// typed values circulate downstream.
package modrinth

import "time"

type DonationURL struct {
	ID       string `json:"id"`
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

type License struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type GalleryItem struct {
	URL         string    `json:"url"`
	Featured    bool      `json:"featured"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Created     time.Time `json:"created"`
	Ordering    int       `json:"ordering"`
}

// Project mirrors models/database/modrinth.py's Project model.
type Project struct {
	ID           string        `json:"id"`
	Slug         string        `json:"slug"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Categories   []string      `json:"categories"`
	ClientSide   string        `json:"client_side"`
	ServerSide   string        `json:"server_side"`
	Status       string        `json:"status"`
	Team         string        `json:"team"`
	Published    time.Time     `json:"published"`
	Updated      time.Time     `json:"updated"`
	Approved     time.Time     `json:"approved"`
	Followers    int           `json:"followers"`
	License      License       `json:"license"`
	Versions     []string      `json:"versions"`
	GameVersions []string      `json:"game_versions"`
	Loaders      []string      `json:"loaders"`
	Gallery      []GalleryItem `json:"gallery"`
	ProjectType  string        `json:"project_type"`
}

type Dependency struct {
	VersionID      string `json:"version_id"`
	ProjectID      string `json:"project_id"`
	FileName       string `json:"file_name"`
	DependencyType string `json:"dependency_type"`
}

type Hashes struct {
	SHA512 string `json:"sha512"`
	SHA1   string `json:"sha1"`
}

// File mirrors models/database/modrinth.py's File model.
type File struct {
	Hashes    Hashes `json:"hashes"`
	URL       string `json:"url"`
	Filename  string `json:"filename"`
	Primary   bool   `json:"primary"`
	Size      int64  `json:"size"`
	FileType  string `json:"file_type"`
	VersionID string `json:"version_id"`
	ProjectID string `json:"project_id"`
}

// Version mirrors models/database/modrinth.py's Version model.
type Version struct {
	ID            string       `json:"id"`
	ProjectID     string       `json:"project_id"`
	Name          string       `json:"name"`
	VersionNumber string       `json:"version_number"`
	Changelog     string       `json:"changelog"`
	Dependencies  []Dependency `json:"dependencies"`
	GameVersions  []string     `json:"game_versions"`
	VersionType   string       `json:"version_type"`
	Loaders       []string     `json:"loaders"`
	Featured      bool         `json:"featured"`
	Status        string       `json:"status"`
	AuthorID      string       `json:"author_id"`
	DatePublished time.Time    `json:"date_published"`
	Downloads     int64        `json:"downloads"`
	Files         []File       `json:"files"`
}

type Category struct {
	Icon        string `json:"icon"`
	Name        string `json:"name"`
	ProjectType string `json:"project_type"`
	Header      string `json:"header"`
}

type Loader struct {
	Icon                  string   `json:"icon"`
	Name                  string   `json:"name"`
	SupportedProjectTypes []string `json:"supported_project_types"`
}

type GameVersion struct {
	Version     string    `json:"version"`
	VersionType string    `json:"version_type"`
	Date        time.Time `json:"date"`
	Major       bool      `json:"major"`
}

// SearchHit is one item in SearchResponse.Hits.
type SearchHit struct {
	ProjectID string `json:"project_id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
}

// SearchResponse is the shape of GET /v2/search.
type SearchResponse struct {
	Hits      []SearchHit `json:"hits"`
	Offset    int         `json:"offset"`
	Limit     int         `json:"limit"`
	TotalHits int         `json:"total_hits"`
}

// HashAlgorithm selects which checksum GetMultiHashes resolves by,
// feeding the two distinct miss-queues mr.hashes.sha1/mr.hashes.sha512.
type HashAlgorithm string

const (
	AlgorithmSHA1   HashAlgorithm = "sha1"
	AlgorithmSHA512 HashAlgorithm = "sha512"
)
