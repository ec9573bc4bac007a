// Package criteria defines the six fixed analysis axes every event and
// window is scored against. The set is immutable: no code path adds,
// removes, or renames a criterion at runtime.
package criteria

// Criterion is one of the six fixed analysis axes. Scores against a
// criterion are always floats in [0, 1].
type Criterion struct {
	// ID is the stable integer identifier persisted in the database.
	ID int
	// Slug is the stable string identifier used in prompts, config keys,
	// and API payloads.
	Slug string
}

// The six fixed criteria, in stable ID order. This array is the single
// source of truth; nothing else in the module may construct a Criterion.
var All = [6]Criterion{
	{ID: 1, Slug: "it_security"},
	{ID: 2, Slug: "performance_degradation"},
	{ID: 3, Slug: "failure_prediction"},
	{ID: 4, Slug: "anomaly"},
	{ID: 5, Slug: "compliance_audit"},
	{ID: 6, Slug: "operational_risk"},
}

var bySlug = func() map[string]Criterion {
	m := make(map[string]Criterion, len(All))
	for _, c := range All {
		m[c.Slug] = c
	}
	return m
}()

var byID = func() map[int]Criterion {
	m := make(map[int]Criterion, len(All))
	for _, c := range All {
		m[c.ID] = c
	}
	return m
}()

// BySlug looks up a criterion by its slug. ok is false for unknown slugs.
func BySlug(slug string) (Criterion, bool) {
	c, ok := bySlug[slug]
	return c, ok
}

// ByID looks up a criterion by its stable id. ok is false for unknown ids.
func ByID(id int) (Criterion, bool) {
	c, ok := byID[id]
	return c, ok
}

// MaxScore is the upper bound of every per-criterion score.
const MaxScore = 1.0

// Vector is a six-element score vector, one slot per criterion in All order.
type Vector [6]float64

// Clamp clamps every element of v to [0, 1].
func (v Vector) Clamp() Vector {
	var out Vector
	for i, x := range v {
		switch {
		case x < 0:
			out[i] = 0
		case x > 1:
			out[i] = 1
		default:
			out[i] = x
		}
	}
	return out
}

// Max returns the largest element of the vector.
func (v Vector) Max() float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// IsZero reports whether every element of the vector is exactly zero.
func (v Vector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Get returns the score for the given criterion slug, or 0 if unknown.
func (v Vector) Get(slug string) float64 {
	c, ok := BySlug(slug)
	if !ok {
		return 0
	}
	return v[c.ID-1]
}

// Set returns a copy of v with the score for the given criterion slug set.
func (v Vector) Set(slug string, value float64) Vector {
	c, ok := BySlug(slug)
	if !ok {
		return v
	}
	v[c.ID-1] = value
	return v
}
