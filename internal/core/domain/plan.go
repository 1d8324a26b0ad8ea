package domain

type AggregateFunc string

const (
	FuncCount AggregateFunc = "COUNT"
	FuncAvg   AggregateFunc = "AVG"
	FuncSum   AggregateFunc = "SUM"
	FuncMax   AggregateFunc = "MAX"
	FuncMin   AggregateFunc = "MIN"
)

type SelectItem struct {
	Column ColumnRef `json:"column"`
	Alias  string    `json:"alias"`
}

// AggregateSpec is a single aggregate; a nil Column means COUNT(*).
type AggregateSpec struct {
	Func   AggregateFunc `json:"func"`
	Column *ColumnRef    `json:"column,omitempty"`
	Alias  string        `json:"alias"`
}

type Predicate struct {
	Column ColumnRef `json:"column"`
	Op     CompareOp `json:"op"`
	Value  any       `json:"value"`
}

// OrderTerm orders by a column or, when Column is nil, by an output alias.
type OrderTerm struct {
	Column *ColumnRef `json:"column,omitempty"`
	Alias  string     `json:"alias,omitempty"`
	Desc   bool       `json:"desc"`
}

// QueryPlan is a schema-bound query, independent of any dialect.
type QueryPlan struct {
	Subject   string               `json:"subject"`
	Joins     []ForeignKeyRelation `json:"joins,omitempty"`
	Select    []SelectItem         `json:"select,omitempty"`
	Aggregate *AggregateSpec       `json:"aggregate,omitempty"`
	GroupBy   []ColumnRef          `json:"group_by,omitempty"`
	Filters   []Predicate          `json:"filters,omitempty"`
	OrderBy   []OrderTerm          `json:"order_by,omitempty"`
	Limit     int                  `json:"limit,omitempty"`
	Scalar    bool                 `json:"scalar"`
	// CorrelationColumn is the output column holding the employee key used
	// to attach documents to rows. Empty when rows carry no such key.
	CorrelationColumn string `json:"correlation_column,omitempty"`
}

// Tables returns the subject followed by each joined table in join order.
func (p *QueryPlan) Tables() []string {
	out := []string{p.Subject}
	for _, j := range p.Joins {
		switch {
		case !containsFold(out, j.TargetTable):
			out = append(out, j.TargetTable)
		case !containsFold(out, j.SourceTable):
			out = append(out, j.SourceTable)
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if equalFold(v, s) {
			return true
		}
	}
	return false
}
