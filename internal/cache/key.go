package cache

import (
	"fmt"
	"sort"
	"strings"
)

// GenerateKey builds "prefix:k1=v1&k2=v2" with params sorted by name, so the
// result does not depend on how params was built.
func GenerateKey(prefix string, params map[string]interface{}) string {
	if len(params) == 0 {
		return prefix
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte(':')
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		fmt.Fprintf(&b, "%s=%v", name, params[name])
	}
	return b.String()
}
