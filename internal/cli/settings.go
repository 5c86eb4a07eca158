package cli

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/models"
)

// textSettings are never decoded as JSON.
var textSettings = []string{"aspectRatio", "aiApiKey"}

// Settings prints the settings, or changes one when given a field and value.
func (a *App) Settings(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printSettings(a.ws.Settings())
		return nil
	}
	if len(args) < 2 {
		a.println("Usage: settings [<field> <value>]")
		return nil
	}

	field, raw := args[0], strings.Join(args[1:], " ")
	if !models.Singletons.Editable(field) {
		return fmt.Errorf("setting %s: %w", field, common.ErrUnknownField)
	}

	fields, err := models.Encode(a.ws.Settings())
	if err != nil {
		return err
	}
	if slices.Contains(textSettings, field) {
		fields.Set(field, raw)
	} else {
		fields.Set(field, parseSettingValue(raw))
	}

	s, err := models.Decode[models.Settings](fields)
	if err != nil {
		return &common.ValidationError{Field: field, Reason: err.Error()}
	}
	if s.AspectRatio != models.AspectSquare && s.AspectRatio != models.AspectWide {
		return &common.ValidationError{Field: "aspectRatio", Reason: "must be 1:1 or 16:9"}
	}

	if err := a.ws.SaveSettings(ctx, s); err != nil {
		return err
	}
	a.printSettings(s)
	return nil
}

func (a *App) printSettings(s models.Settings) {
	w, h := s.Dimensions()
	a.printf("aspectRatio:   %s (%dx%d)\n", s.AspectRatio, w, h)
	a.printf("useRandomSeed: %t\n", s.UseRandomSeed)
	if s.CustomSeed != nil {
		a.printf("customSeed:    %d\n", *s.CustomSeed)
	} else {
		a.println("customSeed:    -")
	}
	if s.AIAPIKey != "" {
		a.println("aiApiKey:      set")
	} else {
		a.println("aiApiKey:      not set")
	}
}
