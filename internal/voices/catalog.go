package voices

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrNotFound reports a lookup for a voice the catalog does not know.
var ErrNotFound = errors.New("voice not found")

// Settings are the provider synthesis knobs attached to a voice.
type Settings struct {
	Stability       float64 `yaml:"stability" json:"stability"`
	SimilarityBoost float64 `yaml:"similarity_boost" json:"similarity_boost"`
	Style           float64 `yaml:"style" json:"style"`
	UseSpeakerBoost bool    `yaml:"use_speaker_boost" json:"use_speaker_boost"`
}

// Voice maps a friendly name to a provider voice and model.
type Voice struct {
	Name        string   `yaml:"name" json:"name"`
	VoiceID     string   `yaml:"voice_id" json:"voice_id"`
	ModelID     string   `yaml:"model_id" json:"model_id"`
	Description string   `yaml:"description" json:"description"`
	Tier        string   `yaml:"tier,omitempty" json:"tier,omitempty"`
	Settings    Settings `yaml:"settings" json:"settings"`
}

// Catalog holds the known voices and the default selection.
type Catalog struct {
	voices      map[string]Voice
	defaultName string
}

type catalogFile struct {
	Default string  `yaml:"default"`
	Voices  []Voice `yaml:"voices"`
}

func defaultSettings() Settings {
	return Settings{
		Stability:       0.7,
		SimilarityBoost: 0.6,
		Style:           0.2,
		UseSpeakerBoost: true,
	}
}

// Builtin returns the catalog shipped with the service.
func Builtin() *Catalog {
	return &Catalog{
		defaultName: "adam",
		voices: map[string]Voice{
			"adam": {
				Name:        "adam",
				VoiceID:     "pNInz6obpgDQGcFmaJgB",
				ModelID:     "eleven_flash_v2_5",
				Description: "Authoritative Male",
				Tier:        "news",
				Settings:    defaultSettings(),
			},
			"sarah": {
				Name:        "sarah",
				VoiceID:     "EXAVITQu4vr4xnSDxMaL",
				ModelID:     "eleven_turbo_v2_5",
				Description: "Professional Female",
				Tier:        "news",
				Settings:    defaultSettings(),
			},
			"arnold": {
				Name:        "arnold",
				VoiceID:     "VR6AewLTigWG4xSOukaG",
				ModelID:     "eleven_multilingual_v2",
				Description: "Engaging Male",
				Tier:        "premium",
				Settings:    defaultSettings(),
			},
		},
	}
}

// Load reads a catalog file and merges it over the builtin voices. An empty
// path returns the builtin catalog; defaultName overrides the file's default
// when set.
func Load(path, defaultName string) (*Catalog, error) {
	cat := Builtin()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read voices file: %w", err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse voices file: %w", err)
		}
		for _, v := range file.Voices {
			if v.Settings == (Settings{}) {
				v.Settings = defaultSettings()
			}
			cat.voices[v.Name] = v
		}
		if file.Default != "" {
			cat.defaultName = file.Default
		}
	}
	if defaultName != "" {
		cat.defaultName = defaultName
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

// Validate ensures every voice is fully specified and the default resolves.
func (c *Catalog) Validate() error {
	if len(c.voices) == 0 {
		return errors.New("catalog must contain at least one voice")
	}
	for name, v := range c.voices {
		if name == "" || v.Name == "" {
			return errors.New("voice name must not be empty")
		}
		if v.Name != name {
			return fmt.Errorf("voice %q keyed under mismatched name %q", v.Name, name)
		}
		if v.VoiceID == "" {
			return fmt.Errorf("voice %q: voice_id is required", name)
		}
		if v.ModelID == "" {
			return fmt.Errorf("voice %q: model_id is required", name)
		}
		if err := validateSettings(v.Settings); err != nil {
			return fmt.Errorf("voice %q: %w", name, err)
		}
	}
	if _, ok := c.voices[c.defaultName]; !ok {
		return fmt.Errorf("default voice %q not present in catalog", c.defaultName)
	}
	return nil
}

func validateSettings(s Settings) error {
	if s.Stability < 0 || s.Stability > 1 {
		return errors.New("settings.stability must be within [0, 1]")
	}
	if s.SimilarityBoost < 0 || s.SimilarityBoost > 1 {
		return errors.New("settings.similarity_boost must be within [0, 1]")
	}
	if s.Style < 0 || s.Style > 1 {
		return errors.New("settings.style must be within [0, 1]")
	}
	return nil
}

// Get resolves a voice by name. An empty name resolves the default voice.
func (c *Catalog) Get(name string) (Voice, error) {
	if name == "" {
		name = c.defaultName
	}
	v, ok := c.voices[name]
	if !ok {
		return Voice{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return v, nil
}

// Default returns the catalog's default voice.
func (c *Catalog) Default() Voice {
	return c.voices[c.defaultName]
}

// List returns all voices ordered by name.
func (c *Catalog) List() []Voice {
	out := make([]Voice, 0, len(c.voices))
	for _, v := range c.voices {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
