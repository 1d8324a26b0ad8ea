package domain

import (
	"math"
	"slices"
	"strconv"
	"time"
)

const (
	DefaultRowLimit            = 100
	DefaultSimilarityThreshold = 0.75
)

// measureSynonyms canonicalizes words that name a quantity.
var measureSynonyms = map[string]string{
	"earning":      "salary",
	"earn":         "salary",
	"earner":       "salary",
	"paid":         "salary",
	"pay":          "salary",
	"making":       "salary",
	"make":         "salary",
	"income":       "salary",
	"compensation": "salary",
	"wage":         "salary",
	"old":          "age",
	"aged":         "age",
}

// purposeVocabulary lets words that are not table names select a table by
// its purpose tag.
var purposeVocabulary = map[PurposeTag][]string{
	PurposeEmployee:   {"employee", "staff", "people", "person", "worker", "personnel", "emp", "headcount", "hire"},
	PurposeDepartment: {"department", "dept", "division", "team"},
	PurposeSalary:     {"salary", "compensation", "payroll"},
}

var (
	temporalColumnWords = []string{"hire", "hired", "join", "joined", "start", "started"}
	labelColumnWords    = []string{"name", "title", "label"}
)

// Synthesizer turns an intent into a plan over a schema graph.
type Synthesizer struct {
	DefaultLimit int
	Threshold    float64
	Now          func() time.Time
}

func NewSynthesizer(defaultLimit int) *Synthesizer {
	if defaultLimit <= 0 {
		defaultLimit = DefaultRowLimit
	}
	return &Synthesizer{DefaultLimit: defaultLimit, Threshold: DefaultSimilarityThreshold, Now: time.Now}
}

type planner struct {
	s      *Synthesizer
	g      *SchemaGraph
	intent QueryIntent
	plan   *QueryPlan
	sort   *SortHint
}

// Synthesize builds a plan or fails with a SQLGenerationError naming the
// terms that could not be bound.
func (s *Synthesizer) Synthesize(intent QueryIntent, g *SchemaGraph) (*QueryPlan, error) {
	if g == nil || len(g.Tables) == 0 {
		return nil, SQLGenerationError("the connected database has no tables")
	}
	p := &planner{s: s, g: g, intent: intent, plan: &QueryPlan{}, sort: intent.Entities.Sort}
	agg := intent.Entities.Aggregation
	groupTerm := intent.Entities.GroupBy
	switch {
	case agg.Kind == AggTopN && groupTerm != "":
		// "top 5 employees by salary" orders by the grouping word.
		agg.Measure, groupTerm = groupTerm, ""
	case agg.Kind == AggTopN && p.sort != nil:
		agg.Measure, p.sort = p.sort.Term, nil
	}

	subject, err := p.resolveSubject(groupTerm, agg)
	if err != nil {
		return nil, err
	}
	p.plan.Subject = subject.Name

	var measure *ColumnRef
	if needsMeasure(agg.Kind) {
		measure, err = p.resolveMeasure(agg.Measure)
		if err != nil {
			return nil, err
		}
		if err := p.join(measure.Table, agg.Measure); err != nil {
			return nil, err
		}
	}

	var group *ColumnRef
	if groupTerm != "" {
		group, err = p.resolveGroup(groupTerm)
		if err != nil {
			return nil, err
		}
		if err := p.join(group.Table, groupTerm); err != nil {
			return nil, err
		}
	}

	if err := p.resolveFilters(); err != nil {
		return nil, err
	}

	// Aggregates keep their own ordering.
	var order *ColumnRef
	if p.sort != nil && agg.Kind == AggNone {
		order, err = p.resolveSort(p.sort.Term)
		if err != nil {
			return nil, err
		}
		if err := p.join(order.Table, p.sort.Term); err != nil {
			return nil, err
		}
	}
	p.shape(agg, measure, group, subject)
	if order != nil {
		p.plan.OrderBy = []OrderTerm{{Column: order, Desc: p.sort.Desc}}
		if !equalFold(order.Table, subject.Name) {
			p.plan.Select = append(p.plan.Select, SelectItem{Column: *order, Alias: order.Table + "_" + order.Column})
		}
	}
	return p.plan, nil
}

func needsMeasure(k AggregationKind) bool {
	switch k {
	case AggAverage, AggSum, AggMax, AggMin, AggTopN:
		return true
	}
	return false
}

func canonicalTerm(term string) string {
	if c, ok := measureSynonyms[term]; ok {
		return c
	}
	return term
}

// tableScore rates how well term names table t.
func tableScore(term string, t *Table) float64 {
	score := Similarity(term, t.Name)
	if slices.Contains(purposeVocabulary[t.Purpose], term) {
		score = math.Max(score, 0.95)
	}
	return score
}

func (p *planner) resolveSubject(groupTerm string, agg Aggregation) (*Table, error) {
	var (
		best      *Table
		bestScore float64
	)
	for _, term := range p.intent.Entities.Terms {
		if term == groupTerm || (needsMeasure(agg.Kind) && term == agg.Measure) || (p.sort != nil && term == p.sort.Term) {
			continue
		}
		for i := range p.g.Tables {
			t := &p.g.Tables[i]
			if t.Purpose == PurposeDocumentMetadata {
				continue
			}
			if sc := tableScore(term, t); sc > bestScore {
				best, bestScore = t, sc
			}
		}
	}
	if best != nil && bestScore >= p.s.Threshold {
		return best, nil
	}

	// No table is named: fall back to the table owning the measured or
	// filtered quantity.
	if needsMeasure(agg.Kind) {
		if ref := p.findNumeric(canonicalTerm(agg.Measure), p.g.Tables); ref != nil {
			t, _ := p.g.Table(ref.Table)
			return t, nil
		}
	}
	for _, f := range p.intent.Entities.Filters {
		switch f.Kind {
		case FilterNumeric:
			if ref := p.findNumeric(canonicalTerm(f.Term), p.g.Tables); ref != nil {
				t, _ := p.g.Table(ref.Table)
				return t, nil
			}
		case FilterTemporal:
			if ref := p.findTemporal(p.g.Tables); ref != nil {
				t, _ := p.g.Table(ref.Table)
				return t, nil
			}
		case FilterValue:
			if emp := p.g.TablesByPurpose(PurposeEmployee); len(emp) > 0 {
				t, _ := p.g.Table(emp[0])
				return t, nil
			}
		}
	}
	return nil, SQLGenerationError("could not identify which table the question is about", p.unmappedTerms()...)
}

func (p *planner) unmappedTerms() []string {
	var out []string
	for _, term := range p.intent.Entities.Terms {
		if slices.Contains(sqlWords, term) || slices.Contains(documentWords, term) {
			continue
		}
		out = append(out, term)
	}
	return out
}

// candidates returns the subject followed by every table reachable from it,
// nearest first.
func (p *planner) candidates() []Table {
	type reach struct {
		idx  int
		hops int
	}
	var rs []reach
	for i := range p.g.Tables {
		t := &p.g.Tables[i]
		if equalFold(t.Name, p.plan.Subject) {
			rs = append(rs, reach{i, 0})
			continue
		}
		if path, ok := p.g.JoinPath(p.plan.Subject, t.Name); ok {
			rs = append(rs, reach{i, len(path)})
		}
	}
	slices.SortStableFunc(rs, func(a, b reach) int { return a.hops - b.hops })
	out := make([]Table, len(rs))
	for i, r := range rs {
		out[i] = p.g.Tables[r.idx]
	}
	return out
}

func (p *planner) resolveMeasure(term string) (*ColumnRef, error) {
	canon := canonicalTerm(term)
	if ref := p.findNumeric(canon, p.candidates()); ref != nil {
		return ref, nil
	}
	if term == "" {
		return nil, SQLGenerationError("the question does not name a numeric quantity to aggregate")
	}
	return nil, SQLGenerationError("no numeric column matches the requested quantity", term)
}

// findNumeric picks the numeric, non-key column best matching term. An empty
// term selects the first compensation-like column.
func (p *planner) findNumeric(term string, tables []Table) *ColumnRef {
	var (
		best      *ColumnRef
		bestScore float64
	)
	for ti := range tables {
		t := &tables[ti]
		for _, c := range t.Columns {
			if !FamilyOf(c.Type).IsNumeric() || c.ForeignKey != nil || slices.Contains(t.PrimaryKey, c.Name) {
				continue
			}
			var sc float64
			if term == "" {
				if nameHasAny(c.Name, salaryWords) {
					sc = 1
				}
			} else {
				sc = Similarity(term, c.Name)
			}
			if sc > bestScore {
				best, bestScore = &ColumnRef{Table: t.Name, Column: c.Name}, sc
			}
		}
	}
	if bestScore < p.s.Threshold {
		return nil
	}
	return best
}

// resolveSort binds a sort term to a numeric column first, then to any
// column or to the label of a joinable table.
func (p *planner) resolveSort(term string) (*ColumnRef, error) {
	canon := canonicalTerm(term)
	cands := p.candidates()
	if ref := p.findNumeric(canon, cands); ref != nil {
		return ref, nil
	}
	var (
		best      *ColumnRef
		bestScore float64
	)
	for ti := range cands {
		t := &cands[ti]
		for _, c := range t.Columns {
			if c.ForeignKey != nil {
				continue
			}
			if sc := Similarity(canon, c.Name); sc > bestScore {
				best, bestScore = &ColumnRef{Table: t.Name, Column: c.Name}, sc
			}
		}
		if !equalFold(t.Name, p.plan.Subject) {
			if sc := tableScore(canon, t); sc > bestScore {
				best, bestScore = &ColumnRef{Table: t.Name, Column: labelColumn(t)}, sc
			}
		}
	}
	if best == nil || bestScore < p.s.Threshold {
		return nil, SQLGenerationError("no column matches the requested ordering", term)
	}
	return best, nil
}

func (p *planner) findTemporal(tables []Table) *ColumnRef {
	for ti := range tables {
		for _, c := range tables[ti].Columns {
			if FamilyOf(c.Type) == FamilyTemporal && nameHasAny(c.Name, temporalColumnWords) {
				return &ColumnRef{Table: tables[ti].Name, Column: c.Name}
			}
		}
	}
	return nil
}

func (p *planner) resolveGroup(term string) (*ColumnRef, error) {
	subject, _ := p.g.Table(p.plan.Subject)
	var (
		best      *ColumnRef
		bestScore float64
	)
	for _, c := range subject.Columns {
		if c.ForeignKey != nil {
			continue
		}
		if sc := Similarity(term, c.Name); sc > bestScore {
			best, bestScore = &ColumnRef{Table: subject.Name, Column: c.Name}, sc
		}
	}
	for i := range p.g.Tables {
		t := &p.g.Tables[i]
		if equalFold(t.Name, subject.Name) {
			continue
		}
		if sc := tableScore(term, t); sc > bestScore {
			best, bestScore = &ColumnRef{Table: t.Name, Column: labelColumn(t)}, sc
		}
	}
	if best == nil || bestScore < p.s.Threshold {
		return nil, SQLGenerationError("could not find what to group by", term)
	}
	return best, nil
}

// labelColumn returns the human-readable column of a table: a text column
// named like name/title/label, else the first text column, else its key.
func labelColumn(t *Table) string {
	var firstText string
	for _, c := range t.Columns {
		if FamilyOf(c.Type) != FamilyText || c.ForeignKey != nil {
			continue
		}
		if nameHasAny(c.Name, labelColumnWords) {
			return c.Name
		}
		if firstText == "" {
			firstText = c.Name
		}
	}
	if firstText != "" {
		return firstText
	}
	if key, ok := t.IdentityColumn(); ok {
		return key
	}
	return t.Columns[0].Name
}

func (p *planner) resolveFilters() error {
	for _, f := range p.intent.Entities.Filters {
		switch f.Kind {
		case FilterNumeric:
			v, _ := f.Value.(float64)
			ref := p.findNumeric(canonicalTerm(f.Term), p.candidates())
			if ref == nil {
				term := f.Term
				if term == "" {
					term = strconv.FormatFloat(v, 'f', -1, 64)
				}
				return SQLGenerationError("no numeric column matches the filter", term)
			}
			if err := p.join(ref.Table, f.Term); err != nil {
				return err
			}
			p.plan.Filters = append(p.plan.Filters, Predicate{Column: *ref, Op: f.Op, Value: numericParam(v)})
		case FilterTemporal:
			ref := p.findTemporal(p.candidates())
			if ref == nil {
				return SQLGenerationError("no date column matches the time filter", f.Term)
			}
			if err := p.join(ref.Table, f.Term); err != nil {
				return err
			}
			from, to, err := periodRange(f.Period, p.s.now())
			if err != nil {
				return err
			}
			p.plan.Filters = append(p.plan.Filters,
				Predicate{Column: *ref, Op: OpGte, Value: from.Format(time.DateOnly)},
				Predicate{Column: *ref, Op: OpLt, Value: to.Format(time.DateOnly)},
			)
		case FilterValue:
			if err := p.join(f.Column.Table, f.Term); err != nil {
				return err
			}
			p.plan.Filters = append(p.plan.Filters, Predicate{Column: *f.Column, Op: OpEq, Value: f.Value})
		}
	}
	return nil
}

func (s *Synthesizer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func numericParam(v float64) any {
	if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
		return int64(v)
	}
	return v
}

func periodRange(period string, now time.Time) (time.Time, time.Time, error) {
	year := now.Year()
	switch period {
	case "this_year":
	case "last_year":
		year--
	default:
		y, err := strconv.Atoi(period)
		if err != nil {
			return time.Time{}, time.Time{}, SQLGenerationError("unrecognised time period", period)
		}
		year = y
	}
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(1, 0, 0), nil
}

// join adds the shortest relation chain from the subject to table.
func (p *planner) join(table, term string) error {
	if containsFold(p.plan.Tables(), table) {
		return nil
	}
	path, ok := p.g.JoinPath(p.plan.Subject, table)
	if !ok {
		return SQLGenerationError("no relationship connects "+p.plan.Subject+" and "+table, term)
	}
	for _, r := range path {
		if !slices.Contains(p.plan.Joins, r) {
			p.plan.Joins = append(p.plan.Joins, r)
		}
	}
	return nil
}

var aggregateFuncs = map[AggregationKind]AggregateFunc{
	AggCount:   FuncCount,
	AggAverage: FuncAvg,
	AggSum:     FuncSum,
	AggMax:     FuncMax,
	AggMin:     FuncMin,
}

func (p *planner) shape(agg Aggregation, measure, group *ColumnRef, subject *Table) {
	plan := p.plan
	switch agg.Kind {
	case AggCount, AggAverage, AggSum, AggMax, AggMin:
		spec := &AggregateSpec{Func: aggregateFuncs[agg.Kind], Column: measure, Alias: string(agg.Kind)}
		if measure != nil {
			spec.Alias = string(agg.Kind) + "_" + measure.Column
		}
		plan.Aggregate = spec
		if group == nil {
			plan.Scalar = true
			return
		}
		plan.Select = []SelectItem{{Column: *group, Alias: group.Column}}
		plan.GroupBy = []ColumnRef{*group}
		plan.OrderBy = []OrderTerm{{Alias: spec.Alias, Desc: true}}
		plan.Limit = p.s.DefaultLimit
		return
	}

	for _, c := range subject.Columns {
		plan.Select = append(plan.Select, SelectItem{Column: ColumnRef{Table: subject.Name, Column: c.Name}, Alias: c.Name})
	}
	if measure != nil && !equalFold(measure.Table, subject.Name) {
		plan.Select = append(plan.Select, SelectItem{Column: *measure, Alias: measure.Column})
	}
	if group != nil && !equalFold(group.Table, subject.Name) {
		plan.Select = append(plan.Select, SelectItem{Column: *group, Alias: group.Table + "_" + group.Column})
	}
	plan.CorrelationColumn = p.correlationColumn(subject)

	plan.Limit = p.s.DefaultLimit
	if p.intent.Entities.Limit > 0 {
		plan.Limit = p.intent.Entities.Limit
	}
	if agg.Kind == AggTopN {
		plan.OrderBy = []OrderTerm{{Column: measure, Desc: agg.Desc}}
		if agg.N > 0 {
			plan.Limit = agg.N
		}
	}
}

// correlationColumn returns the subject column holding an employee key.
func (p *planner) correlationColumn(subject *Table) string {
	if subject.Purpose == PurposeEmployee {
		if key, ok := subject.IdentityColumn(); ok {
			return key
		}
	}
	for _, c := range subject.Columns {
		if c.ForeignKey == nil {
			continue
		}
		if t, ok := p.g.Table(c.ForeignKey.Table); ok && t.Purpose == PurposeEmployee {
			return c.Name
		}
	}
	return ""
}
