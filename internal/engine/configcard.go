package engine

import (
	"fmt"
	"strings"

	"github.com/flemzord/lorekeeper/internal/card"
	"github.com/flemzord/lorekeeper/internal/settings"
)

const (
	// ConfigCardTitle names the card whose notes hold editable settings.
	ConfigCardTitle = "Lorekeeper Config"

	configCardType  = "class"
	configCardEntry = "Adjust Lorekeeper settings by editing the notes (key: value)."
)

// writeConfigCard renders s into the config card, creating the card when
// create is set. It reports whether a card was written.
func writeConfigCard(store card.Store, s *settings.Settings, create bool) (bool, error) {
	c := card.Find(store, ConfigCardTitle)
	if c == nil {
		if !create {
			return false, nil
		}
		created, err := card.Create(store, ConfigCardTitle, configCardType)
		if err != nil {
			return false, fmt.Errorf("engine: config card: %w", err)
		}
		c = created
	}
	c.Type = configCardType
	c.Keys = ""
	c.Entry = configCardEntry
	c.Description = settings.Serialize(s)
	return true, nil
}

// readConfigCard applies the config card's notes to s. It reports whether
// any recognised key was applied.
func readConfigCard(store card.Store, s *settings.Settings) bool {
	c := card.Find(store, ConfigCardTitle)
	if c == nil || strings.TrimSpace(c.Description) == "" {
		return false
	}
	return len(s.Apply(settings.Parse(c.Description))) > 0
}
