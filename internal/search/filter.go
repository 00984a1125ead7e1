package search

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

const (
	dateLayout    = "2006-01-02"
	dateTokenLen  = len(dateLayout)
	dateRangeSpan = 365 * 24 * time.Hour
)

// RangeClause is a half-open date window on one field.
type RangeClause struct {
	Path string
	Gte  time.Time
	Lt   time.Time
}

// CompiledFilter holds three parallel renderings of one filter set. Each search
// mode consumes a different one: lexical stages use QueryString and Range, vector
// stages use Match. A nil *CompiledFilter means no filters were given.
type CompiledFilter struct {
	QueryString string
	DefaultPath string
	Range       *RangeClause
	Match       bson.D
}

// HasQueryString reports whether any non-date clause survived translation.
func (f *CompiledFilter) HasQueryString() bool {
	return f != nil && f.QueryString != ""
}

type clause struct {
	raw   string
	field string
	value string
}

// Translate parses field:value filter clauses for the given domain.
func Translate(filters []string, d *Domain) (*CompiledFilter, error) {
	if len(filters) == 0 {
		return nil, nil
	}

	clauses := make([]clause, 0, len(filters))
	for _, raw := range filters {
		c, err := splitClause(raw)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}

	out := &CompiledFilter{}
	var passthrough []clause
	var conjuncts bson.A

	for _, c := range clauses {
		if !d.IsDateField(c.field) {
			passthrough = append(passthrough, c)
			continue
		}
		// Only the first date clause is consulted.
		if out.Range != nil {
			continue
		}
		start, err := parseDateValue(c)
		if err != nil {
			return nil, err
		}
		out.Range = &RangeClause{Path: c.field, Gte: start, Lt: start.Add(dateRangeSpan)}
		conjuncts = append(conjuncts,
			bson.D{{Key: c.field, Value: bson.D{{Key: "$gte", Value: out.Range.Gte}}}},
			bson.D{{Key: c.field, Value: bson.D{{Key: "$lt", Value: out.Range.Lt}}}},
		)
	}

	for _, c := range passthrough {
		conjuncts = append(conjuncts, bson.D{{Key: c.field, Value: bson.D{{Key: "$eq", Value: unquote(c.value)}}}})
	}

	switch len(passthrough) {
	case 0:
	case 1:
		out.QueryString = passthrough[0].raw
		out.DefaultPath = passthrough[0].field
	default:
		raws := make([]string, len(passthrough))
		for i, c := range passthrough {
			raws[i] = c.raw
		}
		out.QueryString = "(" + strings.Join(raws, ") AND (") + ")"
		out.DefaultPath = passthrough[0].field
	}

	if len(conjuncts) > 0 {
		out.Match = bson.D{{Key: "$and", Value: conjuncts}}
	}
	return out, nil
}

func splitClause(raw string) (clause, error) {
	field, value, ok := strings.Cut(raw, ":")
	if !ok {
		return clause{}, malformed(raw, "missing ':' separator")
	}
	field = strings.TrimSpace(field)
	if field == "" {
		return clause{}, malformed(raw, "empty field name")
	}
	return clause{raw: raw, field: field, value: value}, nil
}

// stripQuotes removes one pair of matching surrounding quotes. An unbalanced
// quote is reported rather than sliced around.
func stripQuotes(v string) (string, bool) {
	if v == "" {
		return v, true
	}
	q := v[0]
	if q != '"' && q != '\'' {
		if last := v[len(v)-1]; last == '"' || last == '\'' {
			return "", false
		}
		return v, true
	}
	if len(v) < 2 || v[len(v)-1] != q {
		return "", false
	}
	return v[1 : len(v)-1], true
}

func unquote(v string) string {
	if s, ok := stripQuotes(v); ok {
		return s
	}
	return strings.Trim(v, `"'`)
}

// parseDateValue reads an ISO date from the first ten characters of the
// unquoted value. A time-of-day suffix is tolerated and ignored.
func parseDateValue(c clause) (time.Time, error) {
	v, ok := stripQuotes(strings.TrimSpace(c.value))
	if !ok {
		return time.Time{}, malformed(c.raw, "unbalanced quotes in date value")
	}
	if len(v) < dateTokenLen {
		return time.Time{}, malformed(c.raw, "date must be YYYY-MM-DD")
	}
	token, rest := v[:dateTokenLen], v[dateTokenLen:]
	if rest != "" && rest[0] != 'T' && rest[0] != ' ' {
		return time.Time{}, malformed(c.raw, "unexpected characters after date")
	}
	t, err := time.Parse(dateLayout, token)
	if err != nil {
		return time.Time{}, malformed(c.raw, "date must be YYYY-MM-DD")
	}
	return t, nil
}
