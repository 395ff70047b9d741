package features

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// ServiceManager selects the service-manager client variant.
const ServiceManager = "serviceManager"

// Features is a set of named boolean switches read from a JSON file that
// may contain comments and trailing commas.
type Features struct {
	flags map[string]bool
}

// Read loads the feature file at path.
func Read(path string) (*Features, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("feature file doesn't exist in %q", path)
		}
		return nil, fmt.Errorf("unable to read %q feature file: %w", path, err)
	}

	return Parse(data, path)
}

// Parse decodes feature file contents; path is used in the error message only.
func Parse(data []byte, path string) (*Features, error) {
	flags := map[string]bool{}
	if err := json.Unmarshal(jsonc.ToJSON(data), &flags); err != nil {
		return nil, fmt.Errorf("unable to parse %q feature file: %w", path, err)
	}
	return &Features{flags: flags}, nil
}

// None is the empty feature set.
func None() *Features {
	return &Features{flags: map[string]bool{}}
}

// Enabled reports whether name is switched on. Unknown names are off.
func (f *Features) Enabled(name string) bool {
	if f == nil {
		return false
	}
	return f.flags[name]
}

// Names lists every flag present in the file.
func (f *Features) Names() []string {
	names := make([]string, 0, len(f.flags))
	for name := range f.flags {
		names = append(names, name)
	}
	return names
}
