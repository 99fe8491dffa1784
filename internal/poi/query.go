package poi

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/property-analyzer/internal/model"
)

const queryTimeoutSecs = 25

// buildQuery renders an Overpass QL union of every selector for every
// element type, restricted to a circle around center.
func buildQuery(rules []selector, elements []string, center model.LatLng, radius float64) string {
	around := fmt.Sprintf("(around:%s,%s,%s)",
		strconv.FormatFloat(radius, 'f', 0, 64),
		strconv.FormatFloat(center.Lat, 'f', 6, 64),
		strconv.FormatFloat(center.Lng, 'f', 6, 64),
	)

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", queryTimeoutSecs)
	for _, el := range elements {
		for _, s := range rules {
			b.WriteString("  ")
			b.WriteString(el)
			for _, f := range s {
				b.WriteString(tagFilter(f))
			}
			b.WriteString(around)
			b.WriteString(";\n")
		}
	}
	b.WriteString(");\nout body;\n>;\nout skel qt;")
	return b.String()
}

func tagFilter(f filter) string {
	switch len(f.values) {
	case 0:
		return fmt.Sprintf("[%q]", f.key)
	case 1:
		return fmt.Sprintf("[%q=%q]", f.key, f.values[0])
	}
	quoted := make([]string, len(f.values))
	for i, v := range f.values {
		quoted[i] = regexp.QuoteMeta(v)
	}
	return fmt.Sprintf("[%q~\"^(%s)$\"]", f.key, strings.Join(quoted, "|"))
}
