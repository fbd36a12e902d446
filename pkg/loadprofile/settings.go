package loadprofile

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/WattMatt/greencalc-sa-sub010/pkg/types"
)

// LoadDefaults reads site setting defaults from a TOML file. Keys missing from
// the file keep their built-in default. An empty path returns the built-in
// defaults.
func LoadDefaults(path string) (types.Settings, error) {
	if path == "" {
		return types.DefaultSettings(), nil
	}
	var s types.Settings
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return types.Settings{}, fmt.Errorf("failed to decode settings file (%s): %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return types.Settings{}, fmt.Errorf("unknown keys in settings file (%s): %v", path, undecoded)
	}
	s, _, err = types.MigrateSettings(s, 0)
	if err != nil {
		return types.Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return types.Settings{}, fmt.Errorf("invalid settings file (%s): %w", path, err)
	}
	return s, nil
}

// resolveSettings returns the effective settings of a site. Sites that never
// saved settings get the defaults; saved settings are migrated forward.
func resolveSettings(stored types.Settings, version int, defaults types.Settings) (types.Settings, error) {
	if version == 0 && stored == (types.Settings{}) {
		return defaults, nil
	}
	s, _, err := types.MigrateSettings(stored, version)
	if err != nil {
		return types.Settings{}, fmt.Errorf("failed to migrate settings: %w", err)
	}
	return s, nil
}
