// Package apicompat detects backward incompatible changes between two
// swagger documents (JSON or YAML).
package apicompat

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var supportedMethods = map[string]struct{}{
	"get":     {},
	"put":     {},
	"post":    {},
	"delete":  {},
	"patch":   {},
	"head":    {},
	"options": {},
}

// Operation is the part of a swagger operation that clients depend on.
type Operation struct {
	Responses map[string]struct{}
	// Params maps "in:name" to whether the parameter is required.
	Params map[string]bool
}

// Spec is a parsed document keyed by path then lower-case method.
type Spec struct {
	Paths map[string]map[string]Operation
}

// Parse reads a swagger document. JSON parses as YAML.
func Parse(raw []byte) (Spec, error) {
	doc := map[string]interface{}{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Spec{}, err
	}

	pathsRaw, ok := doc["paths"]
	if !ok {
		return Spec{}, errors.New("missing top-level paths field")
	}
	pathsMap, ok := toMap(pathsRaw)
	if !ok {
		return Spec{}, errors.New("paths is not an object")
	}

	spec := Spec{Paths: make(map[string]map[string]Operation)}
	for pathKey, pathEntry := range pathsMap {
		pathOpsRaw, ok := toMap(pathEntry)
		if !ok {
			continue
		}

		ops := make(map[string]Operation)
		for methodKey, methodEntry := range pathOpsRaw {
			method := strings.ToLower(strings.TrimSpace(methodKey))
			if _, supported := supportedMethods[method]; !supported {
				continue
			}
			methodMap, ok := toMap(methodEntry)
			if !ok {
				continue
			}
			ops[method] = Operation{
				Responses: responseCodes(methodMap["responses"]),
				Params:    params(methodMap["parameters"]),
			}
		}

		if len(ops) > 0 {
			spec.Paths[pathKey] = ops
		}
	}
	return spec, nil
}

func responseCodes(v interface{}) map[string]struct{} {
	out := make(map[string]struct{})
	m, ok := toMap(v)
	if !ok {
		return out
	}
	for code := range m {
		if normalized := strings.ToLower(strings.TrimSpace(code)); normalized != "" {
			out[normalized] = struct{}{}
		}
	}
	return out
}

func params(v interface{}) map[string]bool {
	out := make(map[string]bool)
	list, ok := v.([]interface{})
	if !ok {
		return out
	}
	for _, item := range list {
		p, ok := toMap(item)
		if !ok {
			continue
		}
		name, _ := p["name"].(string)
		in, _ := p["in"].(string)
		if name == "" {
			continue
		}
		required, _ := p["required"].(bool)
		out[in+":"+name] = required
	}
	return out
}

func toMap(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// Compare lists the changes in revision that would break a client of base,
// sorted.
func Compare(base, revision Spec) []string {
	var issues []string

	for path, baseOps := range base.Paths {
		revOps, ok := revision.Paths[path]
		if !ok {
			issues = append(issues, fmt.Sprintf("removed path: %s", path))
			continue
		}

		for method, baseOp := range baseOps {
			op := strings.ToUpper(method) + " " + path
			revOp, ok := revOps[method]
			if !ok {
				issues = append(issues, fmt.Sprintf("removed operation: %s", op))
				continue
			}

			for code := range baseOp.Responses {
				if _, ok := revOp.Responses[code]; !ok {
					issues = append(issues, fmt.Sprintf("removed response code: %s -> %s", op, strings.ToUpper(code)))
				}
			}
			for key, wasRequired := range baseOp.Params {
				required, ok := revOp.Params[key]
				if !ok {
					issues = append(issues, fmt.Sprintf("removed parameter: %s %s", op, key))
				} else if required && !wasRequired {
					issues = append(issues, fmt.Sprintf("parameter became required: %s %s", op, key))
				}
			}
			for key, required := range revOp.Params {
				if _, existed := baseOp.Params[key]; !existed && required {
					issues = append(issues, fmt.Sprintf("new required parameter: %s %s", op, key))
				}
			}
		}
	}

	sort.Strings(issues)
	return issues
}
