// Package eval scores detection quality over labelled replay runs.
package eval

import (
	"fmt"
	"sort"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/profile"
)

// #region verdict
// Classify maps an outcome to its confusion-matrix cell. A fall trace counts
// as detected when it produced at least one event.
func Classify(o Outcome) Verdict {
	detected := o.Events > 0
	switch {
	case o.Label == LabelFall && detected:
		return VerdictTP
	case o.Label == LabelFall:
		return VerdictFN
	case detected:
		return VerdictFP
	default:
		return VerdictTN
	}
}

func (c *Counts) add(v Verdict) {
	switch v {
	case VerdictTP:
		c.TP++
	case VerdictFP:
		c.FP++
	case VerdictFN:
		c.FN++
	case VerdictTN:
		c.TN++
	}
}

// #endregion verdict

// #region score
// Score aggregates outcomes into a report.
func Score(outcomes []Outcome) Report {
	r := Report{ByMode: make(map[profile.Mode]Counts)}
	for _, o := range outcomes {
		v := Classify(o)
		r.Overall.add(v)
		c := r.ByMode[o.Mode]
		c.add(v)
		r.ByMode[o.Mode] = c
	}
	return r
}

// Modes lists the modes present in r in a stable order.
func (r Report) Modes() []profile.Mode {
	modes := make([]profile.Mode, 0, len(r.ByMode))
	for m := range r.ByMode {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	return modes
}

// #endregion score

// #region rates
// Total returns the number of scored traces.
func (c Counts) Total() int { return c.TP + c.FP + c.FN + c.TN }

// Precision is TP/(TP+FP), or 0 when nothing was detected.
func (c Counts) Precision() float64 {
	return ratio(c.TP, c.TP+c.FP)
}

// Recall is TP/(TP+FN), or 0 when there were no falls.
func (c Counts) Recall() float64 {
	return ratio(c.TP, c.TP+c.FN)
}

// Specificity is TN/(TN+FP), or 0 when there were no ADL traces.
func (c Counts) Specificity() float64 {
	return ratio(c.TN, c.TN+c.FP)
}

func (c Counts) String() string {
	return fmt.Sprintf("TP=%d FP=%d FN=%d TN=%d precision=%.2f recall=%.2f",
		c.TP, c.FP, c.FN, c.TN, c.Precision(), c.Recall())
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// #endregion rates
