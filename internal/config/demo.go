package config

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"crowdwatch-worker-go/internal/models"
)

type demoFile struct {
	Streams []models.DemoStream `yaml:"streams"`
}

// DefaultDemoStreams is the built-in demo camera catalog
func DefaultDemoStreams() []models.DemoStream {
	return []models.DemoStream{
		{ID: "cam1", Name: "Main Entrance", URL: "http://demo/cam1", Kind: models.StreamKindHTTP},
		{ID: "cam2", Name: "Lobby Area", URL: "http://demo/cam2", Kind: models.StreamKindHTTP},
		{ID: "cam3", Name: "Food Court", URL: "http://demo/cam3", Kind: models.StreamKindHTTP},
	}
}

// LoadDemoStreams reads the demo catalog from a YAML file, falling back to the
// built-in catalog when path is empty.
func LoadDemoStreams(path string) ([]models.DemoStream, error) {
	if path == "" {
		return DefaultDemoStreams(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read demo streams file: %w", err)
	}

	var f demoFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse demo streams file: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Streams))
	for i := range f.Streams {
		s := &f.Streams[i]
		if s.ID == "" || s.URL == "" {
			return nil, fmt.Errorf("demo stream %d: id and url are required", i)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("demo stream %q: duplicate id", s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Kind == "" {
			s.Kind = models.StreamKindHTTP
		}
		if !s.Kind.IsValid() {
			return nil, fmt.Errorf("demo stream %q: unsupported kind %q", s.ID, s.Kind)
		}
		if s.Name == "" {
			s.Name = s.ID
		}
	}

	log.Info().Str("file", path).Int("count", len(f.Streams)).Msg("Loaded demo stream catalog")
	return f.Streams, nil
}
