package script

import (
	"fmt"
	"sort"
	"strings"
)

// ResolveInputs merges provided run inputs over the schema defaults.
// Required fields with neither a value nor a default are returned in
// missing; the caller decides whether that is fatal.
func ResolveInputs(schema []InputField, provided map[string]interface{}) (vars map[string]interface{}, missing []string) {
	vars = make(map[string]interface{}, len(schema)+len(provided))
	for _, f := range schema {
		if f.Default != nil {
			vars[f.Name] = f.Default
		}
	}
	for k, v := range provided {
		vars[k] = v
	}
	for _, f := range schema {
		if _, ok := vars[f.Name]; !ok && f.Required {
			missing = append(missing, f.Name)
		}
	}
	sort.Strings(missing)
	return vars, missing
}

// MissingInputsError reports required inputs that have no value.
type MissingInputsError struct {
	Names []string
}

func (e *MissingInputsError) Error() string {
	return fmt.Sprintf("missing required inputs: %s", strings.Join(e.Names, ", "))
}
