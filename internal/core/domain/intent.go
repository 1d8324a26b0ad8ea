package domain

import (
	"math"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// QueryMode selects the execution path of a question.
type QueryMode string

const (
	ModeSQL      QueryMode = "sql"
	ModeDocument QueryMode = "document"
	ModeHybrid   QueryMode = "hybrid"
)

type AggregationKind string

const (
	AggNone    AggregationKind = ""
	AggCount   AggregationKind = "count"
	AggAverage AggregationKind = "average"
	AggSum     AggregationKind = "sum"
	AggMax     AggregationKind = "max"
	AggMin     AggregationKind = "min"
	AggTopN    AggregationKind = "top_n"
)

type Aggregation struct {
	Kind AggregationKind `json:"kind,omitempty"`
	// Measure is the word naming the aggregated quantity ("salary").
	Measure string `json:"measure,omitempty"`
	N       int    `json:"n,omitempty"`
	Desc    bool   `json:"desc,omitempty"`
}

type FilterKind string

const (
	FilterNumeric  FilterKind = "numeric"
	FilterTemporal FilterKind = "temporal"
	FilterValue    FilterKind = "value"
)

type CompareOp string

const (
	OpEq  CompareOp = "="
	OpGt  CompareOp = ">"
	OpGte CompareOp = ">="
	OpLt  CompareOp = "<"
	OpLte CompareOp = "<="
)

// FilterHint is a predicate found in the question, not yet bound to a column
// unless Column is set (value filters found in sample rows).
type FilterHint struct {
	Kind   FilterKind `json:"kind"`
	Term   string     `json:"term,omitempty"`
	Op     CompareOp  `json:"op"`
	Value  any        `json:"value"`
	Column *ColumnRef `json:"column,omitempty"`
	// Period is "this_year", "last_year" or a four digit year for temporal filters.
	Period string `json:"period,omitempty"`
}

// SortHint is an explicit "sorted by X" request. Term is the word naming
// the column.
type SortHint struct {
	Term string `json:"term"`
	Desc bool   `json:"desc"`
}

type Entities struct {
	Terms       []string     `json:"terms"`
	Aggregation Aggregation  `json:"aggregation"`
	GroupBy     string       `json:"group_by,omitempty"`
	Filters     []FilterHint `json:"filters,omitempty"`
	Sort        *SortHint    `json:"sort,omitempty"`
	Limit       int          `json:"limit,omitempty"`
}

// Cue is one matched entry of the cue table.
type Cue struct {
	Name string    `json:"name"`
	Mode QueryMode `json:"mode"`
}

type QueryIntent struct {
	Question   string    `json:"question"`
	Mode       QueryMode `json:"mode"`
	Confidence float64   `json:"confidence"`
	Ambiguous  bool      `json:"ambiguous"`
	Cues       []Cue     `json:"cues"`
	Entities   Entities  `json:"entities"`
}

// cueSaturation is the number of cues at which confidence reaches 1.
const cueSaturation = 3

// DefaultMinConfidence is the threshold below which classification falls
// back to hybrid.
const DefaultMinConfidence = 0.3

// Word cues compare against singularized question tokens.
var (
	sqlWords = []string{
		"employee", "staff", "salary", "department", "dept", "hired", "hire",
		"earning", "earn", "paid", "compensation", "payroll", "manager", "headcount",
		"average", "avg", "mean", "count", "total", "sum", "maximum", "minimum",
		"highest", "lowest",
	}
	documentWords = []string{
		"resume", "cv", "review", "skill", "mention", "mentioned", "document",
		"experience", "certification", "certified", "feedback", "contract",
		"policy", "qualification", "expertise", "background", "portfolio",
		"note", "wrote", "written", "proficient",
	}
)

type phraseCue struct {
	name string
	mode QueryMode
	re   *regexp.Regexp
}

var phraseCues = []phraseCue{
	{"how many", ModeSQL, regexp.MustCompile(`\bhow many\b`)},
	{"number of", ModeSQL, regexp.MustCompile(`\bnumber of\b`)},
	{"top n", ModeSQL, regexp.MustCompile(`\b(?:top|bottom)\s+\d+\b`)},
	{"numeric predicate", ModeSQL, numericFilterRe},
	{"hire period", ModeSQL, temporalFilterRe},
	{"sort", ModeSQL, sortRe},
	{"cover letter", ModeDocument, regexp.MustCompile(`\bcover letters?\b`)},
	{"talks about", ModeDocument, regexp.MustCompile(`\btalks? about\b`)},
}

var (
	topNRe           = regexp.MustCompile(`\b(top|bottom|highest|lowest)\s+(\d+)\b`)
	groupByRe        = regexp.MustCompile(`\b(?:by|per|for each|in each|across)\s+(?:the\s+|each\s+)?([a-z][a-z_]*)`)
	numericFilterRe  = regexp.MustCompile(`\b(?:([a-z_]+)\s+)?(over|above|more than|greater than|at least|under|below|less than|at most)\s+\$?(\d+(?:\.\d+)?)\s*(k|m)?\b`)
	temporalFilterRe = regexp.MustCompile(`\b(hired|joined|started)\s+(this year|last year|in (\d{4}))`)
	limitRe          = regexp.MustCompile(`\b(?:first|limit)\s+(\d+)\b`)
	sortRe           = regexp.MustCompile(`\b(?:sorted|ordered|sort|order|ranked)\s+by\s+(?:the\s+|their\s+)?([a-z][a-z_]*)(?:\s+(ascending|asc|descending|desc|(?:highest|largest|most|newest|latest|lowest|smallest|least|oldest|earliest)\s+first))?`)

	// rankingWords qualify a top-N question without naming its measure.
	rankingWords = map[string]bool{
		"highest": true, "lowest": true, "top": true, "bottom": true, "most": true, "least": true,
		"best": true, "worst": true, "largest": true, "smallest": true, "biggest": true,
	}

	ascendingRanks  = map[string]bool{"lowest": true, "bottom": true, "least": true, "worst": true, "smallest": true}
	descendingFirst = map[string]bool{"highest": true, "largest": true, "most": true, "newest": true, "latest": true}

	aggregationVerbs = []struct {
		kind  AggregationKind
		words []string
	}{
		{AggCount, []string{"how many", "count", "number of"}},
		{AggAverage, []string{"average", "avg", "mean"}},
		{AggSum, []string{"total", "sum"}},
		{AggMax, []string{"maximum", "max", "highest", "largest"}},
		{AggMin, []string{"minimum", "min", "lowest", "smallest"}},
	}

	stopwords = map[string]bool{
		"a": true, "an": true, "the": true, "of": true, "in": true, "on": true, "for": true,
		"with": true, "and": true, "or": true, "to": true, "is": true, "are": true, "was": true,
		"were": true, "do": true, "does": true, "did": true, "we": true, "i": true, "me": true,
		"my": true, "our": true, "us": true, "you": true, "what": true, "which": true, "who": true,
		"whose": true, "how": true, "many": true, "much": true, "show": true, "list": true,
		"give": true, "find": true, "get": true, "all": true, "any": true, "have": true, "has": true,
		"by": true, "per": true, "each": true, "that": true, "this": true, "there": true, "it": true,
		"be": true, "from": true, "at": true, "than": true, "over": true, "under": true, "above": true,
		"below": true, "more": true, "less": true, "least": true, "most": true, "greater": true,
		"k": true, "m": true, "year": true, "last": true, "top": true, "bottom": true, "please": true,
		"across": true, "some": true, "their": true, "them": true, "whom": true, "can": true,
		"sorted": true, "ordered": true, "sort": true, "order": true, "ranked": true,
		"asc": true, "ascending": true, "desc": true, "descending": true,
	}
)

// QueryClassifier is a deterministic cue-table classifier.
type QueryClassifier struct {
	MinConfidence float64
}

func NewQueryClassifier(minConfidence float64) *QueryClassifier {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &QueryClassifier{MinConfidence: minConfidence}
}

// Classify maps a question to a mode, a confidence and extracted entities.
// It depends only on its inputs.
func (c *QueryClassifier) Classify(question string, g *SchemaGraph) QueryIntent {
	text := NormalizeQuestion(question)
	intent := QueryIntent{Question: question}
	intent.Entities = extractEntities(text, g)

	seen := map[string]bool{}
	addCue := func(name string, mode QueryMode) {
		if !seen[name] {
			seen[name] = true
			intent.Cues = append(intent.Cues, Cue{Name: name, Mode: mode})
		}
	}
	for _, tok := range Tokens(text) {
		w := Singular(tok)
		switch {
		case slices.Contains(sqlWords, w):
			addCue(w, ModeSQL)
		case slices.Contains(documentWords, w):
			addCue(w, ModeDocument)
		}
	}
	for _, p := range phraseCues {
		if p.re.MatchString(text) {
			addCue(p.name, p.mode)
		}
	}
	if g != nil {
		for _, term := range intent.Entities.Terms {
			for _, t := range g.Tables {
				if t.Purpose != PurposeDocumentMetadata && SingularName(t.Name) == term {
					addCue("table:"+t.Name, ModeSQL)
				}
			}
		}
	}
	for _, f := range intent.Entities.Filters {
		if f.Kind == FilterValue {
			addCue("value:"+f.Column.Table+"."+f.Column.Column, ModeSQL)
		}
	}

	var sqlN, docN int
	for _, cue := range intent.Cues {
		if cue.Mode == ModeSQL {
			sqlN++
		} else {
			docN++
		}
	}
	switch {
	case sqlN > 0 && docN > 0:
		intent.Mode = ModeHybrid
		intent.Confidence = saturate(sqlN + docN)
	case sqlN > 0:
		intent.Mode = ModeSQL
		intent.Confidence = saturate(sqlN)
	case docN > 0:
		intent.Mode = ModeDocument
		intent.Confidence = saturate(docN)
	}
	if intent.Mode == "" || intent.Confidence < c.MinConfidence {
		intent.Mode = ModeHybrid
		intent.Ambiguous = true
	}
	return intent
}

func saturate(n int) float64 {
	return math.Min(1, math.Round(float64(n)/cueSaturation*1000)/1000)
}

func extractEntities(text string, g *SchemaGraph) Entities {
	var e Entities
	toks := Tokens(text)

	if m := topNRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[2])
		measure, rank := measureAfterRank(text, m[0])
		desc := m[1] == "top" || m[1] == "highest"
		if rank != "" {
			desc = !ascendingRanks[rank]
		}
		e.Aggregation = Aggregation{Kind: AggTopN, Measure: measure, N: n, Desc: desc}
	} else {
	verbs:
		for _, v := range aggregationVerbs {
			for _, w := range v.words {
				if containsPhrase(text, w) {
					e.Aggregation = Aggregation{Kind: v.kind, Measure: wordAfter(text, w)}
					break verbs
				}
			}
		}
	}

	// The "by" of a sort phrase is not a grouping.
	rest := text
	if m := sortRe.FindStringSubmatch(text); m != nil {
		e.Sort = &SortHint{Term: Singular(m[1]), Desc: descendingSort(m[2])}
		rest = strings.Replace(text, m[0], " ", 1)
	}
	if m := groupByRe.FindStringSubmatch(rest); m != nil {
		e.GroupBy = Singular(m[1])
	}
	if m := limitRe.FindStringSubmatch(text); m != nil {
		e.Limit, _ = strconv.Atoi(m[1])
	}

	for _, m := range numericFilterRe.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			continue
		}
		switch m[4] {
		case "k":
			v *= 1_000
		case "m":
			v *= 1_000_000
		}
		term := m[1]
		if term == "" || stopwords[term] {
			term = wordBefore(toks, m[2])
		}
		e.Filters = append(e.Filters, FilterHint{Kind: FilterNumeric, Term: Singular(term), Op: compareOps[m[2]], Value: v})
	}
	if m := temporalFilterRe.FindStringSubmatch(text); m != nil {
		period := strings.ReplaceAll(m[2], " ", "_")
		if m[3] != "" {
			period = m[3]
		}
		e.Filters = append(e.Filters, FilterHint{Kind: FilterTemporal, Term: m[1], Op: OpGte, Period: period})
	}
	e.Filters = append(e.Filters, sampleValueFilters(text, g)...)

	for _, tok := range toks {
		if stopwords[tok] || (tok[0] >= '0' && tok[0] <= '9') {
			continue
		}
		w := Singular(tok)
		if !slices.Contains(e.Terms, w) {
			e.Terms = append(e.Terms, w)
		}
	}
	return e
}

var compareOps = map[string]CompareOp{
	"over": OpGt, "above": OpGt, "more than": OpGt, "greater than": OpGt, "at least": OpGte,
	"under": OpLt, "below": OpLt, "less than": OpLt, "at most": OpLte,
}

// sampleValueFilters matches text values seen in sample rows against the
// question, as whole words. Candidates are visited in table then sorted
// column order so the first match per value is stable.
func sampleValueFilters(text string, g *SchemaGraph) []FilterHint {
	if g == nil {
		return nil
	}
	var out []FilterHint
	used := map[string]bool{}
	for _, t := range g.Tables {
		if t.Purpose == PurposeDocumentMetadata {
			continue
		}
		cols := make([]string, 0, len(t.Columns))
		for _, c := range t.Columns {
			if FamilyOf(c.Type) == FamilyText && !IsFreeText(c.Type) {
				cols = append(cols, c.Name)
			}
		}
		sort.Strings(cols)
		for _, col := range cols {
			for _, row := range t.SampleRows {
				s, ok := row[col].(string)
				if !ok {
					continue
				}
				v := strings.ToLower(strings.TrimSpace(s))
				if len(v) < 3 || used[v] || isVocabulary(v) || !containsPhrase(text, v) {
					continue
				}
				used[v] = true
				out = append(out, FilterHint{
					Kind:   FilterValue,
					Term:   v,
					Op:     OpEq,
					Value:  s,
					Column: &ColumnRef{Table: t.Name, Column: col},
				})
			}
		}
	}
	return out
}

func isVocabulary(v string) bool {
	w := Singular(v)
	return stopwords[v] || slices.Contains(sqlWords, w) || slices.Contains(documentWords, w)
}

// containsPhrase reports whether phrase occurs in text on word boundaries.
func containsPhrase(text, phrase string) bool {
	for i := 0; ; {
		j := strings.Index(text[i:], phrase)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(phrase)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		i = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

// wordAfter returns the first content word following phrase in text.
func wordAfter(text, phrase string) string {
	i := strings.Index(text, phrase)
	if i < 0 {
		return ""
	}
	for _, tok := range Tokens(text[i+len(phrase):]) {
		if !stopwords[tok] && !isNumber(tok) {
			return Singular(tok)
		}
	}
	return ""
}

// measureAfterRank is wordAfter for top-N phrases: ranking words between
// the number and the measure are skipped, and the first one is returned.
func measureAfterRank(text, phrase string) (measure, rank string) {
	i := strings.Index(text, phrase)
	if i < 0 {
		return "", ""
	}
	for _, tok := range Tokens(text[i+len(phrase):]) {
		switch {
		case rankingWords[tok]:
			if rank == "" {
				rank = tok
			}
		case stopwords[tok] || isNumber(tok):
		default:
			return Singular(tok), rank
		}
	}
	return "", rank
}

func descendingSort(direction string) bool {
	switch {
	case direction == "desc", direction == "descending":
		return true
	case strings.HasSuffix(direction, " first"):
		return descendingFirst[strings.Fields(direction)[0]]
	}
	return false
}

// wordBefore returns the closest content token preceding the first token
// of phrase.
func wordBefore(toks []string, phrase string) string {
	first := strings.Fields(phrase)[0]
	idx := slices.Index(toks, first)
	for i := idx - 1; i >= 0; i-- {
		if !stopwords[toks[i]] && !isNumber(toks[i]) {
			return toks[i]
		}
	}
	return ""
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
