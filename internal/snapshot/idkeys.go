package snapshot

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultIDField is the identifying field for entity types without an override.
const DefaultIDField = "id"

// IDKeys maps an entity type name to the field which identifies its records.
// Entity types missing from the map use DefaultIDField.
type IDKeys map[string]string

// DefaultIDKeys returns the overrides needed by the EBMS export.
func DefaultIDKeys() IDKeys {
	return IDKeys{
		"board_summaries":               "board",
		"files":                         "fid",
		"journals":                      "source_id",
		"print_job_statuses_vocabulary": "name",
		"print_job_types_vocabulary":    "name",
		"users":                         "uid",
	}
}

// KeyFor returns the identifying field for entityType.
func (k IDKeys) KeyFor(entityType string) string {
	if field, ok := k[entityType]; ok && field != "" {
		return field
	}
	return DefaultIDField
}

// Merge returns a copy of k with the entries of other layered on top.
func (k IDKeys) Merge(other IDKeys) IDKeys {
	merged := make(IDKeys, len(k)+len(other))
	for name, field := range k {
		merged[name] = field
	}
	for name, field := range other {
		merged[name] = field
	}
	return merged
}

// Validate checks that no entry maps to an empty field name.
func (k IDKeys) Validate() error {
	for name, field := range k {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("id key override with empty entity type")
		}
		if strings.TrimSpace(field) == "" {
			return fmt.Errorf("id key override for %q has empty field name", name)
		}
	}
	return nil
}

// String renders the table in entity type order.
func (k IDKeys) String() string {
	names := make([]string, 0, len(k))
	for name := range k {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+k[name])
	}
	return strings.Join(parts, ",")
}
