// SPDX-License-Identifier: Apache-2.0

package schema

// FoldHeaders returns doc with a headers list of {name, value} pairs folded
// into a name to value mapping. The last value wins on duplicate names. doc
// itself is never modified; when there is nothing to fold it is returned as
// is. A list holding anything other than name/value pairs is left alone so
// validation reports it.
func FoldHeaders(doc map[string]any) map[string]any {
	list, ok := doc["headers"].([]any)
	if !ok {
		return doc
	}

	folded := make(map[string]any, len(list))
	for _, item := range list {
		pair, ok := item.(map[string]any)
		if !ok {
			return doc
		}
		name, ok := pair["name"].(string)
		if !ok {
			return doc
		}
		folded[name] = pair["value"]
	}

	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	out["headers"] = folded
	return out
}
