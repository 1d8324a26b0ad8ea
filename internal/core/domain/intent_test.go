package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryClassifier_Modes(t *testing.T) {
	c := NewQueryClassifier(0)
	g := hrGraph()

	tests := []struct {
		question string
		want     QueryMode
	}{
		{"How many employees do we have?", ModeSQL},
		{"Average salary by department", ModeSQL},
		{"Top 5 employees by salary", ModeSQL},
		{"Show me resumes with Python skills", ModeDocument},
		{"Which reviews mention leadership?", ModeDocument},
		{"Employees with Python skills earning over 100k", ModeHybrid},
		{"kubernetes", ModeHybrid},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.question, g).Mode)
		})
	}
}

func TestQueryClassifier_AmbiguousDefaultsToHybrid(t *testing.T) {
	intent := NewQueryClassifier(0).Classify("tell me something interesting", hrGraph())

	assert.Equal(t, ModeHybrid, intent.Mode)
	assert.True(t, intent.Ambiguous)
	assert.Zero(t, intent.Confidence)
	assert.Empty(t, intent.Cues)
}

func TestQueryClassifier_Deterministic(t *testing.T) {
	c := NewQueryClassifier(0)
	g := hrGraph()
	q := "Employees in Engineering hired this year earning over 90k with Go skills"

	first := c.Classify(q, g)
	for range 20 {
		assert.Equal(t, first, c.Classify(q, g))
	}
}

func TestQueryClassifier_Entities(t *testing.T) {
	c := NewQueryClassifier(0)
	g := hrGraph()

	intent := c.Classify("Average salary by department", g)
	assert.Equal(t, Aggregation{Kind: AggAverage, Measure: "salary"}, intent.Entities.Aggregation)
	assert.Equal(t, "department", intent.Entities.GroupBy)
	assert.Equal(t, 1.0, intent.Confidence)

	intent = c.Classify("Employees with Python skills earning over 100k", g)
	require.Len(t, intent.Entities.Filters, 1)
	assert.Equal(t, FilterHint{Kind: FilterNumeric, Term: "earning", Op: OpGt, Value: 100000.0}, intent.Entities.Filters[0])
	assert.Contains(t, intent.Entities.Terms, "python")

	intent = c.Classify("top 3 highest paid employees", g)
	assert.Equal(t, Aggregation{Kind: AggTopN, Measure: "paid", N: 3, Desc: true}, intent.Entities.Aggregation)

	intent = c.Classify("How many employees were hired in 2023 in Engineering", g)
	require.Len(t, intent.Entities.Filters, 2)
	assert.Equal(t, FilterTemporal, intent.Entities.Filters[0].Kind)
	assert.Equal(t, "2023", intent.Entities.Filters[0].Period)
	assert.Equal(t, FilterValue, intent.Entities.Filters[1].Kind)
	assert.Equal(t, "Engineering", intent.Entities.Filters[1].Value)
	assert.Equal(t, &ColumnRef{Table: "departments", Column: "name"}, intent.Entities.Filters[1].Column)
}

func TestQueryClassifier_TopNMeasureSkipsRankingWords(t *testing.T) {
	c := NewQueryClassifier(0)
	g := hrGraph()

	tests := []struct {
		question string
		want     Aggregation
	}{
		{"Top 5 highest paid employees", Aggregation{Kind: AggTopN, Measure: "paid", N: 5, Desc: true}},
		{"Top 3 lowest paid employees", Aggregation{Kind: AggTopN, Measure: "paid", N: 3}},
		{"Show the top 3 earners", Aggregation{Kind: AggTopN, Measure: "earner", N: 3, Desc: true}},
		{"bottom 2 paid employees", Aggregation{Kind: AggTopN, Measure: "paid", N: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.question, g).Entities.Aggregation)
		})
	}
}

func TestQueryClassifier_SortHint(t *testing.T) {
	c := NewQueryClassifier(0)
	g := hrGraph()

	tests := []struct {
		question string
		want     *SortHint
	}{
		{"list employees sorted by salary", &SortHint{Term: "salary"}},
		{"employees ordered by salary desc", &SortHint{Term: "salary", Desc: true}},
		{"employees sorted by salary descending", &SortHint{Term: "salary", Desc: true}},
		{"employees sorted by hire date", &SortHint{Term: "hire"}},
		{"list employees order by the salary highest first", &SortHint{Term: "salary", Desc: true}},
		{"list all employees", nil},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			intent := c.Classify(tt.question, g)
			assert.Equal(t, tt.want, intent.Entities.Sort)
			assert.Empty(t, intent.Entities.GroupBy, "the sort phrase is not a grouping")
		})
	}
}
