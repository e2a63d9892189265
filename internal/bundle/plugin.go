// Package bundle turns a project into the artifacts the runtime app consumes:
// the debug install payload and the distributable plugin.zip.
package bundle

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/vbook-dev/vbook/internal/project"
)

const (
	debugIDPrefix = "debug-"
	iconDataURL   = "data:image/*;base64,"
)

// PluginData is the install payload, sent base64-encoded JSON in the data
// header of GET /install.
type PluginData struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Author      string `json:"author"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Regexp      string `json:"regexp"`
	Locale      string `json:"locale"`
	Tag         string `json:"tag"`
	Type        string `json:"type"`
	Home        string `json:"home"`
	Genre       string `json:"genre"`
	Detail      string `json:"detail"`
	Search      string `json:"search"`
	Page        string `json:"page"`
	Toc         string `json:"toc"`
	Chap        string `json:"chap"`
	Icon        string `json:"icon"`
	Enabled     bool   `json:"enabled"`
	Debug       bool   `json:"debug"`
	// Data is a JSON object, itself encoded as a string, mapping script file
	// names to their source.
	Data string `json:"data"`
}

func (pd *PluginData) Validate() error {
	switch {
	case pd.ID == "":
		return errors.New("id is required")
	case pd.Name == "":
		return errors.New("name is required")
	case pd.Author == "":
		return errors.New("author is required")
	case pd.Version == "":
		return errors.New("version is required")
	case pd.Source == "":
		return errors.New("source is required")
	case pd.Icon == "":
		return errors.New("icon is required")
	case pd.Data == "":
		return errors.New("data is required")
	}
	return nil
}

// PreparePluginData validates p for bundling and assembles its install
// payload.
func PreparePluginData(p *project.Project) (*PluginData, error) {
	if err := p.ValidateForBundle(); err != nil {
		return nil, err
	}

	icon, err := os.ReadFile(p.IconPath())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", project.IconFile, err)
	}

	scripts, err := p.Scripts()
	if err != nil {
		return nil, err
	}
	sources := make(map[string]string, len(scripts))
	for _, name := range scripts {
		content, err := os.ReadFile(filepath.Join(p.SourceDirPath(), name))
		if err != nil {
			return nil, fmt.Errorf("read script %s: %w", name, err)
		}
		sources[name] = string(content)
	}
	data, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("encode script sources: %w", err)
	}

	meta := p.Descriptor.Metadata
	script := p.Descriptor.Script
	pd := &PluginData{
		ID:          debugIDPrefix + meta.Source,
		Name:        meta.Name,
		Author:      meta.Author,
		Version:     strconv.Itoa(meta.Version),
		Description: meta.Description,
		Source:      meta.Source,
		Regexp:      meta.Regexp,
		Locale:      meta.Locale,
		Tag:         meta.Tag,
		Type:        meta.Type,
		Home:        script.Home,
		Genre:       script.Genre,
		Detail:      script.Detail,
		Search:      script.Search,
		Page:        script.Page,
		Toc:         script.Toc,
		Chap:        script.Chap,
		Icon:        iconDataURL + base64.StdEncoding.EncodeToString(icon),
		Enabled:     true,
		Debug:       true,
		Data:        string(data),
	}
	if err := pd.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plugin data: %w", err)
	}
	return pd, nil
}
