package intake

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ExtractedFields is the structured result of parsing free-text clinical
// self-report. Nil fields were not found.
type ExtractedFields struct {
	Age        *int     `json:"age"`
	WeightKg   *float64 `json:"weight_kg"`
	HeightCm   *float64 `json:"height_cm"`
	Conditions []string `json:"conditions"`
}

// ---------- package-level compiled patterns ----------

var (
	ageYearsRE     = regexp.MustCompile(`(\d{1,2})\s*a[nñ]os`)
	ageLabelRE     = regexp.MustCompile(`edad[:\s]*([0-9]{1,2})`)
	ageBareRE      = regexp.MustCompile(`\b([1-9]\d)\b`)
	weightUnitRE   = regexp.MustCompile(`([0-9]{2,3}(?:\.[0-9])?)\s*kg`)
	weightLabelRE  = regexp.MustCompile(`peso[:\s]*([0-9]{2,3}(?:\.[0-9])?)`)
	heightCmRE     = regexp.MustCompile(`([1-2][0-9]{2})\s*cm`)
	heightMetersRE = regexp.MustCompile(`([0-2](?:\.[0-9]{1,2}))\s*m`)
	heightLabelRE  = regexp.MustCompile(`estatura[:\s]*([1-2][0-9]{2})`)
	heightSpokenRE = regexp.MustCompile(`mido\s*([0-2](?:\.[0-9]{1,2}))`)
	bareNumberRE   = regexp.MustCompile(`[0-9]{2,3}(?:\.[0-9])?`)
)

// conditionStems is the fixed dictionary of clinical condition stems, matched
// case-insensitively as substrings. Output preserves dictionary order.
var conditionStems = []string{
	"diabetes", "hipertensi", "hipotiroid", "tiroid", "apnea",
	"hígado graso", "higado graso", "reflujo", "gastritis", "colitis",
	"asma", "dislipidemia", "artritis", "depresi", "ansiedad",
}

// ExtractFields parses age, weight, height and conditions out of highly
// unstructured Spanish free text, e.g. "tengo 38, peso 112 kg y mido 1.68".
func ExtractFields(text string) ExtractedFields {
	t := strings.ReplaceAll(strings.ToLower(text), ",", ".")

	var out ExtractedFields
	nums := bareNumberRE.FindAllString(t, -1)

	out.Age = extractAge(t)
	if out.Age != nil {
		// An age that appeared as a bare number must not be re-read as weight.
		nums = dropFirstEqual(nums, float64(*out.Age))
	}
	out.WeightKg = extractWeight(t, nums)
	out.HeightCm = extractHeight(t, nums)
	out.Conditions = extractConditions(t)
	return out
}

func dropFirstEqual(nums []string, v float64) []string {
	for i, n := range nums {
		if f, err := strconv.ParseFloat(n, 64); err == nil && f == v {
			return append(nums[:i:i], nums[i+1:]...)
		}
	}
	return nums
}

func extractAge(t string) *int {
	for _, re := range []*regexp.Regexp{ageYearsRE, ageLabelRE, ageBareRE} {
		if m := re.FindStringSubmatch(t); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil && v > 0 {
				return &v
			}
		}
	}
	return nil
}

func extractWeight(t string, nums []string) *float64 {
	for _, re := range []*regexp.Regexp{weightUnitRE, weightLabelRE} {
		if m := re.FindStringSubmatch(t); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
				return &v
			}
		}
	}
	// Two or more bare 2-3 digit numbers usually read as weight then height.
	if len(nums) >= 2 {
		if v, err := strconv.ParseFloat(nums[0], 64); err == nil && v > 0 {
			return &v
		}
	}
	return nil
}

func extractHeight(t string, nums []string) *float64 {
	if m := heightCmRE.FindStringSubmatch(t); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return &v
		}
	}
	for _, re := range []*regexp.Regexp{heightMetersRE, heightSpokenRE} {
		if m := re.FindStringSubmatch(t); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
				cm := math.Round(v * 100)
				return &cm
			}
		}
	}
	if m := heightLabelRE.FindStringSubmatch(t); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return &v
		}
	}
	// Weight already claimed the first bare number; the second one is height
	// when it lands in plausible human range.
	if len(nums) >= 2 {
		if v, err := strconv.ParseFloat(nums[1], 64); err == nil {
			cm := math.Round(v)
			if cm >= 130 && cm <= 220 {
				return &cm
			}
		}
	}
	return nil
}

func extractConditions(t string) []string {
	var found []string
	seen := make(map[string]struct{})
	for _, stem := range conditionStems {
		if strings.Contains(t, stem) {
			if _, dup := seen[stem]; !dup {
				seen[stem] = struct{}{}
				found = append(found, stem)
			}
		}
	}
	return found
}

// RegexExtractor adapts ExtractFields to the FieldExtractor interface used by
// the dialogue engine. It is the deterministic-only extraction mode.
type RegexExtractor struct{}

func (RegexExtractor) Extract(_ context.Context, text string) ExtractedFields {
	return ExtractFields(text)
}
