package cache

import (
	"encoding/json"
	"os"
)

// MigrateBuildCache moves a build cache from a legacy location (older
// releases kept it under the output directory) to its current home under
// <root>/.bengal/. The migration only runs when the new location is absent:
// an existing cache at newPath is always newer than whatever the legacy
// location holds and must never be overwritten by older data. A legacy file
// that fails to parse is discarded rather than migrated, so a corrupt old
// cache degrades to a full rebuild instead of an error.
func MigrateBuildCache(newPath, legacyPath string) error {
	if _, err := os.Stat(newPath); err == nil {
		return nil
	}
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		return nil // no legacy cache either; nothing to migrate
	}
	probe := NewBuildCache()
	if err := json.Unmarshal(data, probe); err != nil {
		os.Remove(legacyPath)
		return nil
	}
	if err := writeJSON(newPath, probe); err != nil {
		return err
	}
	return os.Remove(legacyPath)
}
