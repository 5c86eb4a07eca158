package models

type AspectRatio string

const (
	AspectSquare AspectRatio = "1:1"
	AspectWide   AspectRatio = "16:9"
)

// SettingsKey is the singleton id holding per-tenant settings.
const SettingsKey = "general"

type Settings struct {
	AspectRatio   AspectRatio `json:"aspectRatio"`
	UseRandomSeed bool        `json:"useRandomSeed"`
	CustomSeed    *int        `json:"customSeed,omitempty"`
	AIAPIKey      string      `json:"aiApiKey,omitempty"`
}

// DefaultSettings is used until the tenant saves settings of their own.
func DefaultSettings() Settings {
	return Settings{AspectRatio: AspectWide, UseRandomSeed: true}
}

// SettingsFrom decodes a saved settings document. Keys missing from f keep
// their default values.
func SettingsFrom(f Fields) (Settings, error) {
	merged, err := Encode(DefaultSettings())
	if err != nil {
		return Settings{}, err
	}
	for k, v := range f {
		merged[k] = v
	}
	return Decode[Settings](merged)
}

// Dimensions returns the image size implied by the aspect ratio.
func (s Settings) Dimensions() (width, height int) {
	if s.AspectRatio == AspectWide {
		return 1280, 720
	}
	return 1024, 1024
}
