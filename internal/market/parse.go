package market

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/property-analyzer/internal/textnorm"
)

const (
	billion  = 1e9
	million  = 1e6
	thousand = 1e3
)

var (
	// Unit words after folding: tỷ/tỉ, triệu/tr, nghìn/ngàn.
	priceTokenRe = regexp.MustCompile(`(\d+(?:[.,]\d+)*)\s*(ty|ti|trieu|tr|nghin|ngan)?\b`)
	numberRe     = regexp.MustCompile(`\d+(?:[.,]\d+)*`)
	areaRe       = regexp.MustCompile(`(\d+(?:[.,]\d+)*)\s*(?:m2|m²|m\b)`)
	perAreaRe    = regexp.MustCompile(`/\s*(?:m2|m²|m\b)`)

	negotiable = []string{"thoa thuan", "lien he", "negotiable", "contact"}

	unitValues = map[string]float64{
		"ty":    billion,
		"ti":    billion,
		"trieu": million,
		"tr":    million,
		"nghin": thousand,
		"ngan":  thousand,
	}
)

// ParsePrice converts listing price text to VND. Per-area prices
// ("45 triệu/m²") are multiplied by area, and are unparseable when area is
// unknown. Bare numbers are scaled by magnitude: below 1000 is billions,
// below 100000 is millions, anything larger is already VND.
func ParsePrice(text string, area float64) (float64, bool) {
	s := textnorm.Fold(text)
	if s == "" {
		return 0, false
	}
	for _, n := range negotiable {
		if strings.Contains(s, n) {
			return 0, false
		}
	}

	perArea := perAreaRe.MatchString(s)
	if perArea {
		s = perAreaRe.ReplaceAllString(s, " ")
	}

	var (
		total    float64
		hasUnit  bool
		firstNum = -1.0
	)
	for _, m := range priceTokenRe.FindAllStringSubmatch(s, -1) {
		v, ok := parseNumber(m[1])
		if !ok {
			continue
		}
		if firstNum < 0 {
			firstNum = v
		}
		if unit, ok := unitValues[m[2]]; ok {
			total += v * unit
			hasUnit = true
		}
	}

	if !hasUnit {
		if firstNum <= 0 {
			return 0, false
		}
		total = scaleBare(firstNum)
	}
	if total <= 0 {
		return 0, false
	}

	if perArea {
		if area <= 0 {
			return 0, false
		}
		total *= area
	}
	return total, true
}

func scaleBare(v float64) float64 {
	switch {
	case v < 1000:
		return v * billion
	case v < 100000:
		return v * million
	default:
		return v
	}
}

// ParseArea extracts an area in m² from text such as "85 m²", "85m2" or
// "1.200,5 m²". Text without a unit is accepted when it is a lone number.
func ParseArea(text string) (float64, bool) {
	s := textnorm.Fold(text)
	if m := areaRe.FindStringSubmatch(s); m != nil {
		return positive(parseNumber(m[1]))
	}
	nums := numberRe.FindAllString(s, -1)
	if len(nums) != 1 {
		return 0, false
	}
	return positive(parseNumber(nums[0]))
}

func positive(v float64, ok bool) (float64, bool) {
	if !ok || v <= 0 {
		return 0, false
	}
	return v, true
}

// parseNumber reads Vietnamese-formatted numbers. With both separators the
// later one is the decimal mark. A lone comma is a decimal mark. Dots are
// thousands separators when repeated or followed by exactly three digits.
func parseNumber(s string) (float64, bool) {
	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")

	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case dot >= 0:
		if strings.Count(s, ".") > 1 || len(s)-dot-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
