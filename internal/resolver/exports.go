package resolver

import (
	"encoding/json"
	"strings"
)

// exportValue represents a node in a package.json exports tree: either
// a string path (leaf) or a map of condition/subpath keys to child
// nodes (branch).
type exportValue struct {
	Path string
	Map  map[string]*exportValue
}

func (v *exportValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v.Path = s
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	v.Map = make(map[string]*exportValue, len(m))
	for k, raw := range m {
		child := &exportValue{}
		if err := json.Unmarshal(raw, child); err != nil {
			return err
		}
		v.Map[k] = child
	}
	return nil
}

// matchExports resolves subpath ("." for the package root, "./react"
// for a named subpath) against a package.json exports field, which may
// itself be a bare string, a subpath map (keys starting with "."), or
// a conditions object.
func matchExports(exports *exportValue, subpath, platform string) string {
	if exports.Path != "" {
		if subpath == "." {
			return exports.Path
		}
		return ""
	}
	if exports.Map == nil {
		return ""
	}

	isSubpathMap := false
	for key := range exports.Map {
		if strings.HasPrefix(key, ".") {
			isSubpathMap = true
			break
		}
	}

	if isSubpathMap {
		if entry, ok := exports.Map[subpath]; ok {
			return resolveCondition(entry, platform)
		}
		return ""
	}

	if subpath == "." {
		return resolveCondition(exports, platform)
	}
	return ""
}

// resolveCondition resolves a condition value using platform-priority
// key ordering, matching common bundler semantics for the browser
// target this engine always builds for.
func resolveCondition(value *exportValue, platform string) string {
	if value.Path != "" {
		return value.Path
	}
	if value.Map == nil {
		return ""
	}

	var keys []string
	if platform == "node" {
		keys = []string{"node", "module", "import", "require", "default"}
	} else {
		keys = []string{"browser", "module", "import", "default"}
	}

	for _, key := range keys {
		if entry, ok := value.Map[key]; ok {
			if result := resolveCondition(entry, platform); result != "" {
				return result
			}
		}
	}
	return ""
}
