package types

// Row is a stored record keyed by attribute name. Values are the store's
// native types: int64, string, bool, or nil.
type Row map[string]any

type Operator string

const (
	OpEqual Operator = "="
	OpLike  Operator = "like"
	OpIn    Operator = "in"
)

// Condition is a single filter predicate on an attribute.
type Condition struct {
	Attribute string
	Op        Operator
	Value     any
}

func Eq(attribute string, value any) Condition {
	return Condition{Attribute: attribute, Op: OpEqual, Value: value}
}

func Like(attribute string, pattern string) Condition {
	return Condition{Attribute: attribute, Op: OpLike, Value: pattern}
}

func In(attribute string, values []any) Condition {
	return Condition{Attribute: attribute, Op: OpIn, Value: values}
}

// InInt64 is the common case of an IN filter over primary keys.
func InInt64(attribute string, ids []int64) Condition {
	values := make([]any, 0, len(ids))
	for _, id := range ids {
		values = append(values, id)
	}
	return In(attribute, values)
}

type SortKey struct {
	Attribute string
	Desc      bool
}

type Page struct {
	Offset int
	Limit  int
}

const (
	TableAccount            = "account"
	TableOrganization       = "organization"
	TablePerson             = "person"
	TableOrganizationPerson = "organization_person"
)

// AttributeSpec describes one attribute of an entity: its storage column,
// whether the generic get/set paths may touch it, and whether it is
// protected (mutable only through a dedicated relationship operation).
type AttributeSpec struct {
	Name      string
	Column    string
	Required  bool
	Reference string // table whose primary key this attribute references
	Get       bool
	Set       bool
	Protected bool
}

// EntitySpec describes an entity's table and attribute set. Specs are data;
// the model base interprets them.
type EntitySpec struct {
	Table      string
	Primary    string
	Attributes []AttributeSpec
}

func (s EntitySpec) Attribute(name string) (AttributeSpec, bool) {
	for _, attr := range s.Attributes {
		if attr.Name == name {
			return attr, true
		}
	}
	return AttributeSpec{}, false
}

// Columns maps attribute names to column names for every attribute in the
// given row, dropping unknown keys.
func (s EntitySpec) Columns(attrs Row) Row {
	out := make(Row, len(attrs))
	for name, value := range attrs {
		if attr, ok := s.Attribute(name); ok {
			out[attr.Column] = value
		}
	}
	return out
}

// AttributesFromColumns is the inverse of Columns for rows returned by a
// store: column-keyed values become attribute-keyed values.
func (s EntitySpec) AttributesFromColumns(row Row) Row {
	out := make(Row, len(row))
	for _, attr := range s.Attributes {
		if value, ok := row[attr.Column]; ok {
			out[attr.Name] = value
		}
	}
	return out
}
