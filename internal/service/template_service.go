// internal/service/template_service.go
package service

import (
	"sort"
	"strings"
)

// RenderTemplate substitutes every {key} in template with data[key] in a
// single pass, so substituted values are never expanded again. Unknown
// placeholders are left as they are.
func RenderTemplate(template string, data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", data[k])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
