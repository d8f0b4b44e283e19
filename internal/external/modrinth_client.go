package external

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/prismarine/craftd/pkg/logger"
)

const (
	ModrinthAPIBase = "https://api.modrinth.com/v2"
	UserAgent       = "craftd/1.0 (github.com/prismarine/craftd)"
)

// ModrinthClient talks to the Modrinth catalog for plugin search and
// artifact resolution.
type ModrinthClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewModrinthClient() *ModrinthClient {
	return &ModrinthClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: ModrinthAPIBase,
	}
}

// SearchResponse represents catalog search results
type SearchResponse struct {
	Hits   []Project `json:"hits"`
	Offset int       `json:"offset"`
	Limit  int       `json:"limit"`
	Total  int       `json:"total_hits"`
}

// Project is one plugin or mod listing
type Project struct {
	ProjectID   string   `json:"project_id"`
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Categories  []string `json:"categories"`
	Author      string   `json:"author"`
	IconURL     string   `json:"icon_url"`
	Downloads   int      `json:"downloads"`
	ProjectType string   `json:"project_type"`
}

// Version is one published build of a project
type Version struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	VersionNumber string    `json:"version_number"`
	VersionType   string    `json:"version_type"`
	GameVersions  []string  `json:"game_versions"`
	Loaders       []string  `json:"loaders"`
	Files         []File    `json:"files"`
	DatePublished time.Time `json:"date_published"`
}

// File is a downloadable artifact of a version
type File struct {
	Hashes   Hashes `json:"hashes"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Primary  bool   `json:"primary"`
	Size     int64  `json:"size"`
}

type Hashes struct {
	SHA1   string `json:"sha1"`
	SHA512 string `json:"sha512"`
}

// Search queries the catalog, restricted to one loader ecosystem.
func (c *ModrinthClient) Search(query, loader string, limit, offset int) (*SearchResponse, error) {
	facets := fmt.Sprintf(`[["project_type:plugin","project_type:mod"],["categories:%s"]]`, loader)

	params := url.Values{}
	if query != "" {
		params.Add("query", query)
	}
	params.Add("facets", facets)
	params.Add("limit", fmt.Sprintf("%d", limit))
	params.Add("offset", fmt.Sprintf("%d", offset))

	resp, err := c.get(fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode()))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var searchResp SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &searchResp, nil
}

// ProjectVersions lists all published versions of a project.
func (c *ModrinthClient) ProjectVersions(projectID string) ([]Version, error) {
	resp, err := c.get(fmt.Sprintf("%s/project/%s/version", c.baseURL, projectID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var versions []Version
	if err := json.NewDecoder(resp.Body).Decode(&versions); err != nil {
		return nil, fmt.Errorf("failed to decode versions response: %w", err)
	}
	return versions, nil
}

// ResolveArtifact picks the newest version compatible with the given
// game version and loader, and returns its primary file.
func (c *ModrinthClient) ResolveArtifact(projectID, gameVersion, loader string) (*File, error) {
	versions, err := c.ProjectVersions(projectID)
	if err != nil {
		return nil, err
	}

	for _, v := range versions {
		if !versionMatches(&v, gameVersion, loader) {
			continue
		}
		for _, f := range v.Files {
			if f.Primary {
				return &f, nil
			}
		}
		if len(v.Files) > 0 {
			return &v.Files[0], nil
		}
	}
	return nil, fmt.Errorf("no compatible build of %s for %s/%s", projectID, loader, gameVersion)
}

func versionMatches(v *Version, gameVersion, loader string) bool {
	gameOK := false
	for _, gv := range v.GameVersions {
		if gv == gameVersion {
			gameOK = true
			break
		}
	}
	if !gameOK {
		return false
	}

	for _, l := range v.Loaders {
		// Paper servers accept paper, spigot and bukkit builds.
		if l == loader || (loader == "paper" && (l == "spigot" || l == "bukkit")) {
			return true
		}
	}
	return false
}

func (c *ModrinthClient) get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	logger.Debug("Modrinth API request", map[string]interface{}{
		"url": url,
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, resp.Status)
	}
	return resp, nil
}
