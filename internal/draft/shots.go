package draft

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/kopfkino/internal/common"
	"github.com/dmitrijs2005/kopfkino/internal/models"
	"github.com/dmitrijs2005/kopfkino/internal/ordering"
)

const shotsField = "shots"

// Shots returns the shots of a scene draft in display order.
func (s *Session) Shots() ([]models.Shot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkShotsLocked(); err != nil {
		return nil, err
	}
	return s.shotsLocked()
}

// AddShot appends shot to the scene and returns its id. An empty id is
// generated.
func (s *Session) AddShot(shot models.Shot) (string, error) {
	if shot.ID == "" {
		shot.ID = uuid.NewString()
	}
	err := s.updateShots(func(shots []models.Shot) ([]models.Shot, error) {
		if shotIndex(shots, shot.ID) >= 0 {
			return nil, &common.ValidationError{Field: "id", Reason: fmt.Sprintf("%q is taken", shot.ID)}
		}
		return append(shots, shot), nil
	})
	if err != nil {
		return "", err
	}
	return shot.ID, nil
}

// UpdateShot overlays changes onto the shot with the given id. Keys must be
// listed in models.ShotFields.
func (s *Session) UpdateShot(id string, changes models.Fields) error {
	for name := range changes {
		if !slices.Contains(models.ShotFields, name) {
			return fmt.Errorf("set shot %s: %w, fields: %s", name, common.ErrUnknownField, strings.Join(models.ShotFields, ", "))
		}
	}
	return s.updateShots(func(shots []models.Shot) ([]models.Shot, error) {
		i := shotIndex(shots, id)
		if i < 0 {
			return nil, fmt.Errorf("shot %s: %w", id, common.ErrNotFound)
		}
		f, err := models.Encode(shots[i])
		if err != nil {
			return nil, err
		}
		for name, v := range changes {
			f.Set(name, v)
		}
		shot, err := models.Decode[models.Shot](f)
		if err != nil {
			return nil, &common.ValidationError{Field: "shot", Reason: err.Error()}
		}
		shot.ID = id
		shots[i] = shot
		return shots, nil
	})
}

// DeleteShot removes the shot with the given id.
func (s *Session) DeleteShot(id string) error {
	return s.updateShots(func(shots []models.Shot) ([]models.Shot, error) {
		i := shotIndex(shots, id)
		if i < 0 {
			return nil, fmt.Errorf("shot %s: %w", id, common.ErrNotFound)
		}
		return slices.Delete(shots, i, i+1), nil
	})
}

// MoveShot moves the shot at position from to position to.
func (s *Session) MoveShot(from, to int) error {
	return s.updateShots(func(shots []models.Shot) ([]models.Shot, error) {
		return ordering.ArrayMove(shots, from, to)
	})
}

// updateShots rewrites the shots field as one edit, so the change autosaves
// like any other SetField.
func (s *Session) updateShots(fn func([]models.Shot) ([]models.Shot, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkShotsLocked(); err != nil {
		return err
	}

	shots, err := s.shotsLocked()
	if err != nil {
		return err
	}
	shots, err = fn(shots)
	if err != nil {
		return err
	}

	f, err := models.Encode(models.Scene{Shots: shots})
	if err != nil {
		return err
	}
	v, ok := f[shotsField]
	if !ok {
		v = []any{}
	}
	s.setFieldLocked(shotsField, v)
	return nil
}

func (s *Session) checkShotsLocked() error {
	if s.closed {
		return common.ErrClosed
	}
	if !s.coll.Editable(shotsField) {
		return fmt.Errorf("shots on %s: %w", s.coll.Name, common.ErrUnknownField)
	}
	return nil
}

func (s *Session) shotsLocked() ([]models.Shot, error) {
	scene, err := models.Decode[models.Scene](s.fields.Pick([]string{shotsField}))
	if err != nil {
		return nil, fmt.Errorf("shots of %s: %w", s.id, err)
	}
	return scene.Shots, nil
}

func shotIndex(shots []models.Shot, id string) int {
	return slices.IndexFunc(shots, func(sh models.Shot) bool { return sh.ID == id })
}
