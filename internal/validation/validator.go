package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"powersvc/domain/core"
	"powersvc/domain/design"
)

// Default load limits
const (
	DefaultMaxGroups = 100
	DefaultMaxCases  = 72
)

// MaxCount is the ceiling for group and case counts
const MaxCount = math.MaxInt32

const loadPreamble = "To better manage the load on our server, we ask that you limit your request to no more than "

// Limits bounds the size of a single request
type Limits struct {
	MaxGroups int
	MaxCases  int
}

// DefaultLimits returns the limits applied when none are configured
func DefaultLimits() Limits {
	return Limits{MaxGroups: DefaultMaxGroups, MaxCases: DefaultMaxCases}
}

// Validator rejects study designs that are malformed or too large to compute
type Validator struct {
	limits Limits
}

// NewValidator creates a validator; non-positive limits fall back to defaults
func NewValidator(limits Limits) *Validator {
	if limits.MaxGroups <= 0 {
		limits.MaxGroups = DefaultMaxGroups
	}
	if limits.MaxCases <= 0 {
		limits.MaxCases = DefaultMaxCases
	}
	return &Validator{limits: limits}
}

// Validate runs every check in order and returns the first failure as a
// *core.ValidationError.
func (v *Validator) Validate(d *design.StudyDesign) error {
	if d == nil {
		return core.NewValidationError("Invalid study design")
	}
	if err := distinctDimensions(d); err != nil {
		return err
	}
	if err := distinctCovariances(d); err != nil {
		return err
	}
	if err := v.validateGroups(d); err != nil {
		return err
	}
	return v.validateCases(d)
}

func distinctDimensions(d *design.StudyDesign) error {
	seen := make(map[string]struct{}, len(d.RepeatedMeasures))
	for _, node := range d.RepeatedMeasures {
		if _, ok := seen[node.Dimension]; ok {
			return core.NewValidationError("Duplicate repeated measures dimension '%s'", node.Dimension)
		}
		seen[node.Dimension] = struct{}{}
	}
	return nil
}

func distinctCovariances(d *design.StudyDesign) error {
	seen := make(map[string]struct{}, len(d.Covariances))
	for _, cov := range d.Covariances {
		if _, ok := seen[cov.Name]; ok {
			return core.NewValidationError("Duplicate covariance name '%s'", cov.Name)
		}
		seen[cov.Name] = struct{}{}
	}
	return nil
}

// CountGroups is the product of the category counts of all factors that
// declare categories. A factor with an empty category list is skipped and
// so weighs 1, the same as a missing factor. The count saturates at
// MaxCount.
func CountGroups(d *design.StudyDesign) int {
	n := 1
	for _, f := range d.BetweenFactors {
		if len(f.Categories) > 0 {
			n = mulSaturating(n, len(f.Categories))
		}
	}
	return n
}

func (v *Validator) validateGroups(d *design.StudyDesign) error {
	nGroups := CountGroups(d)
	if nGroups <= v.limits.MaxGroups {
		return nil
	}

	var sizes, items []string
	for _, f := range d.BetweenFactors {
		if len(f.Categories) == 0 {
			continue
		}
		sizes = append(sizes, strconv.Itoa(len(f.Categories)))
		items = append(items, fmt.Sprintf("predictor '%s' has %d values", f.PredictorName, len(f.Categories)))
	}
	return core.NewValidationError("%s", loadMessage(v.limits.MaxGroups, "groups", nGroups, sizes, items))
}

// caseDimension is one factor of the case count
type caseDimension struct {
	n              int
	single, plural string
}

// caseDimensions lists the sweep dimensions in the order they are reported
func caseDimensions(d *design.StudyDesign) []caseDimension {
	units := caseDimension{single: "Group Size", plural: "Group Sizes"}
	switch d.SolutionType {
	case design.SolvePower:
		units.n = len(d.SampleSizes)
	case design.SolveSampleSize:
		units = caseDimension{n: len(d.NominalPowers), single: "Desired Power", plural: "Desired Powers"}
	}

	methods := 0
	if d.HasPowerMethod(design.PowerUnconditional) {
		methods++
	}
	if d.HasPowerMethod(design.PowerQuantile) {
		methods += len(d.Quantiles)
	}

	return []caseDimension{
		units,
		{len(d.StatisticalTests), "Statistical Test", "Statistical Tests"},
		{len(d.Alphas), "Type I Error Rate", "Type I Error Rates"},
		{len(d.BetaScales), "Scale Factor For Means", "Scale Factors for Means"},
		{len(d.SigmaScales), "Scale Factor for Variability", "Scale Factors for Variability"},
		{methods, "Power Method", "Power Methods"},
	}
}

// CountCases is the number of sweep points a design requests. An absent or
// empty list contributes a factor of 1. The count saturates at MaxCount.
func CountCases(d *design.StudyDesign) int {
	n := 1
	for _, dim := range caseDimensions(d) {
		n = mulSaturating(n, weight(dim.n))
	}
	return n
}

func (v *Validator) validateCases(d *design.StudyDesign) error {
	if d.SolutionType == "" {
		return core.NewValidationError("Study design has no solution type")
	}

	nCases := CountCases(d)
	if nCases <= v.limits.MaxCases {
		return nil
	}

	var sizes, items []string
	for _, dim := range caseDimensions(d) {
		if dim.n == 0 {
			continue
		}
		sizes = append(sizes, strconv.Itoa(dim.n))
		items = append(items, combination(dim.n, dim.single, dim.plural))
	}
	return core.NewValidationError("%s", loadMessage(v.limits.MaxCases, "cases", nCases, sizes, items))
}

func loadMessage(limit int, noun string, total int, sizes, items []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s%d %s.<br>", loadPreamble, limit, noun)
	fmt.Fprintf(&sb, "Your request currently includes %s %s (%s):", pretty(total), noun, strings.Join(sizes, " × "))
	sb.WriteString("<ul>")
	for _, item := range items {
		sb.WriteString("<li>" + item + "</li>")
	}
	sb.WriteString("</ul>")
	return sb.String()
}

func combination(n int, single, plural string) string {
	if n == 1 {
		return "1 " + single
	}
	return strconv.Itoa(n) + " " + plural
}

// mulSaturating multiplies two positive counts, clamping at MaxCount
func mulSaturating(a, b int) int {
	if a > MaxCount/b {
		return MaxCount
	}
	return a * b
}

func weight(n int) int {
	if n == 0 {
		return 1
	}
	return n
}

// pretty formats n with comma thousands separators
func pretty(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
