package models

import (
	"encoding/json"
	"fmt"
)

type Project struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

type Scene struct {
	Number      string   `json:"number"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Comment     string   `json:"comment,omitempty"`
	LocationID  string   `json:"locationId"`
	Characters  []string `json:"characters,omitempty"`
	Shots       []Shot   `json:"shots,omitempty"`
}

// Shot is embedded in its scene; it has no collection of its own.
type Shot struct {
	ID               string   `json:"id"`
	Number           string   `json:"number,omitempty"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	VisualizationURL string   `json:"visualizationUrl,omitempty"`
	ImageURL         string   `json:"imageUrl,omitempty"`
	Length           *float64 `json:"length,omitempty"`
	Audio            *bool    `json:"audio,omitempty"`
}

// ShotFields lists the editable fields of a shot.
var ShotFields = []string{"number", "name", "description", "visualizationUrl", "imageUrl", "length", "audio"}

// Decode converts record fields into a typed entity.
func Decode[T any](f Fields) (T, error) {
	var v T
	b, err := json.Marshal(f)
	if err != nil {
		return v, fmt.Errorf("encode fields: %w", err)
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("decode fields: %w", err)
	}
	return v, nil
}

// Encode converts a typed entity into record fields.
func Encode(v any) (Fields, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode entity: %w", err)
	}
	var f Fields
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode entity: %w", err)
	}
	return f, nil
}
