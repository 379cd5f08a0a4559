// Package persist lays the conversation and user preferences out as JSON
// values under named keys of a storage.Driver. Corrupt or missing values are
// treated as absent and never fail a load.
package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/persona"
	"github.com/papercomputeco/studio/pkg/session"
	"github.com/papercomputeco/studio/pkg/storage"
)

// Keys of the persisted state layout.
const (
	KeyPrefix      = "ai:"
	KeyMessages    = KeyPrefix + "messages"
	KeyModel       = KeyPrefix + "model"
	KeyPersona     = KeyPrefix + "persona"
	KeyTemperature = KeyPrefix + "temperature"
	KeyTheme       = KeyPrefix + "theme"
	KeyNotes       = KeyPrefix + "notes"
)

// Preference defaults.
const (
	DefaultModel       = "llama-3.1-8b-instant"
	DefaultTemperature = 0.7
	DefaultTheme       = "vsc"
)

// Preferences are the user settings that survive restarts.
type Preferences struct {
	Model       string
	Persona     string
	Temperature float64
	Theme       string
}

// DefaultPreferences returns the preferences used when nothing is stored.
func DefaultPreferences() Preferences {
	return Preferences{
		Model:       DefaultModel,
		Persona:     persona.Default,
		Temperature: DefaultTemperature,
		Theme:       DefaultTheme,
	}
}

// Repository reads and writes the persisted state layout.
type Repository struct {
	driver storage.Driver
	logger *zap.Logger
}

var _ session.Persister = (*Repository)(nil)

// NewRepository wraps driver.
func NewRepository(driver storage.Driver, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{driver: driver, logger: logger}
}

// SaveConversation stores turns under KeyMessages.
func (r *Repository) SaveConversation(ctx context.Context, turns []history.Turn) error {
	if turns == nil {
		turns = []history.Turn{}
	}
	return r.put(ctx, KeyMessages, turns)
}

// LoadConversation returns the stored conversation. The boolean is false when
// nothing usable is stored.
func (r *Repository) LoadConversation(ctx context.Context) ([]history.Turn, bool, error) {
	var turns []history.Turn
	ok, err := r.get(ctx, KeyMessages, &turns)
	if err != nil || !ok {
		return nil, false, err
	}
	r.logger.Debug("conversation loaded", zap.Int("turns", len(turns)))
	return turns, true, nil
}

// LoadPreferences returns the stored preferences, taking every value that is
// missing or corrupt from fallback.
func (r *Repository) LoadPreferences(ctx context.Context, fallback Preferences) (Preferences, error) {
	prefs := fallback

	var model, name, theme string
	var temperature float64

	if ok, err := r.get(ctx, KeyModel, &model); err != nil {
		return prefs, err
	} else if ok && model != "" {
		prefs.Model = model
	}

	if ok, err := r.get(ctx, KeyPersona, &name); err != nil {
		return prefs, err
	} else if ok && persona.Valid(name) {
		prefs.Persona = name
	} else if ok {
		r.corrupt(KeyPersona, &persona.UnknownError{Name: name})
	}

	if ok, err := r.get(ctx, KeyTemperature, &temperature); err != nil {
		return prefs, err
	} else if ok && temperature >= 0 && temperature <= 2 {
		prefs.Temperature = temperature
	} else if ok {
		r.corrupt(KeyTemperature, fmt.Errorf("temperature %v out of range", temperature))
	}

	if ok, err := r.get(ctx, KeyTheme, &theme); err != nil {
		return prefs, err
	} else if ok && theme != "" {
		prefs.Theme = theme
	}

	return prefs, nil
}

// SavePreferences stores every preference under its own key.
func (r *Repository) SavePreferences(ctx context.Context, prefs Preferences) error {
	values := []struct {
		key   string
		value any
	}{
		{KeyModel, prefs.Model},
		{KeyPersona, prefs.Persona},
		{KeyTemperature, prefs.Temperature},
		{KeyTheme, prefs.Theme},
	}
	for _, v := range values {
		if err := r.put(ctx, v.key, v.value); err != nil {
			return err
		}
	}
	return nil
}

// LoadNotes returns the notes scratchpad, empty when nothing usable is stored.
func (r *Repository) LoadNotes(ctx context.Context) (string, error) {
	var notes string
	if _, err := r.get(ctx, KeyNotes, &notes); err != nil {
		return "", err
	}
	return notes, nil
}

// SaveNotes replaces the notes scratchpad.
func (r *Repository) SaveNotes(ctx context.Context, notes string) error {
	return r.put(ctx, KeyNotes, notes)
}

// Clear removes every key of the layout.
func (r *Repository) Clear(ctx context.Context) error {
	keys, err := r.driver.Keys(ctx, KeyPrefix)
	if err != nil {
		return fmt.Errorf("listing persisted keys: %w", err)
	}
	for _, key := range keys {
		if err := r.driver.Delete(ctx, key); err != nil {
			return fmt.Errorf("clearing %s: %w", key, err)
		}
	}
	r.logger.Info("persisted state cleared", zap.Int("keys", len(keys)))
	return nil
}

func (r *Repository) put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := r.driver.Put(ctx, key, data); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// get decodes key into dst. A missing or undecodable value reports false
// without an error; only driver failures are returned.
func (r *Repository) get(ctx context.Context, key string, dst any) (bool, error) {
	data, ok, err := r.driver.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("loading %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		r.corrupt(key, err)
		return false, nil
	}
	return true, nil
}

func (r *Repository) corrupt(key string, err error) {
	r.logger.Warn("ignoring corrupt persisted value",
		zap.String("key", key),
		zap.Error(&session.ValidationError{Reason: fmt.Sprintf("%s: %v", key, err)}),
	)
}
