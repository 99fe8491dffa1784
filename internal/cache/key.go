package cache

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Key builds a deterministic cache key from a data kind and its parameters.
// Parameters are encoded in sorted order so identical requests produce the
// same key regardless of how the map was built. Slice values are sorted too.
func Key(kind string, params map[string]any) string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(kind)
	b.WriteByte(':')
	for i, k := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(encodeValue(params[k]))
	}
	return b.String()
}

// Round rounds v to the given number of decimals. Used to normalize
// coordinates before they go into a key.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func encodeValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []string:
		s := append([]string(nil), t...)
		sort.Strings(s)
		return strings.Join(s, ",")
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
