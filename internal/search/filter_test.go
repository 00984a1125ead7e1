package search

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestTranslate_EmptyFilters(t *testing.T) {
	for _, filters := range [][]string{nil, {}} {
		f, err := Translate(filters, Trials)
		require.NoError(t, err)
		assert.Nil(t, f)
	}
}

func TestTranslate_SingleClauseVerbatim(t *testing.T) {
	f, err := Translate([]string{`status:"Not yet recruiting"`}, Trials)
	require.NoError(t, err)
	require.NotNil(t, f)

	assert.Equal(t, `status:"Not yet recruiting"`, f.QueryString)
	assert.Equal(t, "status", f.DefaultPath)
	assert.Nil(t, f.Range)
}

func TestTranslate_MultipleClausesJoined(t *testing.T) {
	filters := []string{"status:Recruiting", "phase:Phase2", "gender:All"}
	f, err := Translate(filters, Trials)
	require.NoError(t, err)

	assert.Equal(t, "(status:Recruiting) AND (phase:Phase2) AND (gender:All)", f.QueryString)
	assert.Equal(t, len(filters)-1, strings.Count(f.QueryString, ") AND ("))
	assert.Equal(t, "status", f.DefaultPath)
}

func TestTranslate_DateClause(t *testing.T) {
	f, err := Translate([]string{`start_date:"2020-01-01"`}, Trials)
	require.NoError(t, err)
	require.NotNil(t, f.Range)

	assert.Equal(t, "start_date", f.Range.Path)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), f.Range.Gte)
	assert.Equal(t, time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC), f.Range.Lt, "2020 is a leap year; window is a fixed 365 days")
	assert.Empty(t, f.QueryString, "date clauses never reach the query string")
}

func TestTranslate_DateWindowNonLeapYear(t *testing.T) {
	f, err := Translate([]string{"start_date:2021-01-01"}, Trials)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), f.Range.Lt)
}

func TestTranslate_DateWithTimeSuffix(t *testing.T) {
	f, err := Translate([]string{`start_date:"2019-06-15T00:00:00Z"`}, Trials)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 6, 15, 0, 0, 0, 0, time.UTC), f.Range.Gte)
}

func TestTranslate_FirstDateClauseWins(t *testing.T) {
	f, err := Translate([]string{"start_date:2018-01-01", "status:Completed", "start_date:2010-01-01"}, Trials)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), f.Range.Gte)
	assert.Equal(t, "status:Completed", f.QueryString)

	and := f.Match[0].Value.(bson.A)
	assert.Len(t, and, 3, "two range conjuncts plus one equality")
}

func TestTranslate_DrugDateFields(t *testing.T) {
	f, err := Translate([]string{"effective_time:2022-03-01"}, Drugs)
	require.NoError(t, err)
	require.NotNil(t, f.Range)
	assert.Equal(t, "effective_time", f.Range.Path)

	f, err = Translate([]string{"effective_time:2022-03-01"}, Trials)
	require.NoError(t, err)
	assert.Nil(t, f.Range, "effective_time is not a trial date field")
	assert.Equal(t, "effective_time:2022-03-01", f.QueryString)
}

func TestTranslate_MatchExpression(t *testing.T) {
	f, err := Translate([]string{`start_date:"2020-01-01"`, `status:"Active, not recruiting"`}, Trials)
	require.NoError(t, err)

	require.Len(t, f.Match, 1)
	assert.Equal(t, "$and", f.Match[0].Key)
	and := f.Match[0].Value.(bson.A)
	require.Len(t, and, 3)

	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, bson.D{{Key: "start_date", Value: bson.D{{Key: "$gte", Value: start}}}}, and[0])
	assert.Equal(t, bson.D{{Key: "start_date", Value: bson.D{{Key: "$lt", Value: start.Add(365 * 24 * time.Hour)}}}}, and[1])
	assert.Equal(t, bson.D{{Key: "status", Value: bson.D{{Key: "$eq", Value: "Active, not recruiting"}}}}, and[2])
}

func TestTranslate_MatchKeepsMetacharactersOutOfQueryString(t *testing.T) {
	f, err := Translate([]string{"condition:Covid OR Flu"}, Trials)
	require.NoError(t, err)

	assert.Equal(t, "condition:Covid OR Flu", f.QueryString)
	and := f.Match[0].Value.(bson.A)
	assert.Equal(t, bson.D{{Key: "condition", Value: bson.D{{Key: "$eq", Value: "Covid OR Flu"}}}}, and[0])
}

func TestTranslate_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		filters []string
	}{
		{"missing separator", []string{"Recruiting"}},
		{"empty field", []string{":Recruiting"}},
		{"date not iso", []string{"start_date:01/02/2020"}},
		{"date too short", []string{`start_date:"2020-1-1"`}},
		{"unbalanced quote", []string{`start_date:"2020-01-01`}},
		{"mismatched quotes", []string{`start_date:"2020-01-01'`}},
		{"trailing garbage", []string{"start_date:2020-01-01abc"}},
		{"invalid calendar date", []string{"start_date:2020-02-30"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Translate(tt.filters, Trials)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedFilter))

			var mf *MalformedFilterError
			require.ErrorAs(t, err, &mf)
			assert.Equal(t, tt.filters[0], mf.Clause)
		})
	}
}

func TestTranslate_SplitsOnFirstColonOnly(t *testing.T) {
	f, err := Translate([]string{"url:https://example.org/x"}, Trials)
	require.NoError(t, err)
	and := f.Match[0].Value.(bson.A)
	assert.Equal(t, bson.D{{Key: "url", Value: bson.D{{Key: "$eq", Value: "https://example.org/x"}}}}, and[0])
}

func TestStripQuotes(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`"abc"`, "abc", true},
		{`'abc'`, "abc", true},
		{"abc", "abc", true},
		{"", "", true},
		{`"`, "", false},
		{`"abc`, "", false},
		{`abc"`, "", false},
	}
	for _, tt := range tests {
		got, ok := stripQuotes(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}
