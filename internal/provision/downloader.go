package provision

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prismarine/craftd/internal/models"
)

// Downloader fetches server jars from the upstream project APIs.
type Downloader struct {
	client *http.Client
}

func NewDownloader() *Downloader {
	return &Downloader{
		client: &http.Client{Timeout: 10 * time.Minute},
	}
}

// Fetch resolves the download URL for kind/version and streams the jar
// to dest, reporting progress through the callback.
func (d *Downloader) Fetch(kind models.ServerKind, version, dest string, progress func(string)) error {
	url, err := d.resolveURL(kind, version)
	if err != nil {
		return err
	}

	progress(fmt.Sprintf("downloading %s %s", kind, version))
	resp, err := d.client.Get(url)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s returned %s", url, resp.Status)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	counter := &progressWriter{total: resp.ContentLength, report: progress}
	if _, err := io.Copy(io.MultiWriter(f, counter), resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("download interrupted: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

func (d *Downloader) resolveURL(kind models.ServerKind, version string) (string, error) {
	switch kind {
	case models.KindVanilla:
		return d.vanillaURL(version)
	case models.KindPaper:
		return d.paperURL("paper", version)
	case models.KindVelocity:
		return d.paperURL("velocity", version)
	case models.KindWaterfall:
		return d.paperURL("waterfall", version)
	case models.KindPurpur:
		return fmt.Sprintf("https://api.purpurmc.org/v2/purpur/%s/latest/download", version), nil
	case models.KindFabric:
		return d.fabricURL(version)
	case models.KindMohist:
		return fmt.Sprintf("https://api.mohistmc.com/api/v2/projects/mohist/%s/builds/latest/download", version), nil
	default:
		return "", fmt.Errorf("no download source for kind %s; place %s manually", kind, "server.jar")
	}
}

type mojangManifest struct {
	Versions []struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"versions"`
}

type mojangVersion struct {
	Downloads struct {
		Server struct {
			URL string `json:"url"`
		} `json:"server"`
	} `json:"downloads"`
}

func (d *Downloader) vanillaURL(version string) (string, error) {
	var manifest mojangManifest
	if err := d.getJSON("https://launchermeta.mojang.com/mc/game/version_manifest.json", &manifest); err != nil {
		return "", err
	}
	for _, v := range manifest.Versions {
		if v.ID == version {
			var meta mojangVersion
			if err := d.getJSON(v.URL, &meta); err != nil {
				return "", err
			}
			if meta.Downloads.Server.URL == "" {
				return "", fmt.Errorf("version %s has no server jar", version)
			}
			return meta.Downloads.Server.URL, nil
		}
	}
	return "", fmt.Errorf("unknown vanilla version %s", version)
}

type paperBuilds struct {
	Builds []struct {
		Build     int `json:"build"`
		Downloads struct {
			Application struct {
				Name string `json:"name"`
			} `json:"application"`
		} `json:"downloads"`
	} `json:"builds"`
}

func (d *Downloader) paperURL(project, version string) (string, error) {
	var builds paperBuilds
	url := fmt.Sprintf("https://api.papermc.io/v2/projects/%s/versions/%s/builds", project, version)
	if err := d.getJSON(url, &builds); err != nil {
		return "", err
	}
	if len(builds.Builds) == 0 {
		return "", fmt.Errorf("no %s builds for version %s", project, version)
	}
	latest := builds.Builds[len(builds.Builds)-1]
	return fmt.Sprintf("https://api.papermc.io/v2/projects/%s/versions/%s/builds/%d/downloads/%s",
		project, version, latest.Build, latest.Downloads.Application.Name), nil
}

type fabricLoaders []struct {
	Loader struct {
		Version string `json:"version"`
	} `json:"loader"`
}

type fabricInstallers []struct {
	Version string `json:"version"`
}

func (d *Downloader) fabricURL(version string) (string, error) {
	var loaders fabricLoaders
	if err := d.getJSON(fmt.Sprintf("https://meta.fabricmc.net/v2/versions/loader/%s", version), &loaders); err != nil {
		return "", err
	}
	if len(loaders) == 0 {
		return "", fmt.Errorf("no fabric loader for version %s", version)
	}
	var installers fabricInstallers
	if err := d.getJSON("https://meta.fabricmc.net/v2/versions/installer", &installers); err != nil {
		return "", err
	}
	if len(installers) == 0 {
		return "", fmt.Errorf("no fabric installer available")
	}
	return fmt.Sprintf("https://meta.fabricmc.net/v2/versions/loader/%s/%s/%s/server/jar",
		version, loaders[0].Loader.Version, installers[0].Version), nil
}

func (d *Downloader) getJSON(url string, out interface{}) error {
	resp, err := d.client.Get(url)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// progressWriter reports download percentage roughly every 5%.
type progressWriter struct {
	total    int64
	written  int64
	lastPct  int
	report   func(string)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.total > 0 {
		pct := int(p.written * 100 / p.total)
		if pct >= p.lastPct+5 {
			p.lastPct = pct
			p.report(fmt.Sprintf("downloading: %d%%", pct))
		}
	}
	return len(b), nil
}
