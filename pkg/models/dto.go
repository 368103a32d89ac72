package models

import (
	"fmt"
	"time"
)

// EntityDto is the wire form of an Entity.
type EntityDto struct {
	ID          string         `json:"id,omitempty"`
	KindName    string         `json:"kindName"`
	Properties  map[string]any `json:"properties,omitempty"`
	CreatedAt   *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time     `json:"updatedAt,omitempty"`
	CreatedBy   string         `json:"createdBy,omitempty"`
	UpdatedBy   string         `json:"updatedBy,omitempty"`
	Owner       string         `json:"owner,omitempty"`
	Permissions string         `json:"permissions,omitempty"`
}

// EntityListDto carries batches. Some backends send a nil Entries for an
// empty result.
type EntityListDto struct {
	Entries []*EntityDto `json:"entries,omitempty"`
}

// FilterDto is the wire form of a Filter. A leaf stores its property name
// as the first element of Values, followed by the operand(s).
type FilterDto struct {
	Operator   string       `json:"operator"`
	Values     []any        `json:"values,omitempty"`
	Subfilters []*FilterDto `json:"subfilters,omitempty"`
}

// QueryDto is the wire form of a Query. RegID names the device that should
// receive push notifications for a subscribing query.
type QueryDto struct {
	KindName                string     `json:"kindName"`
	Filter                  *FilterDto `json:"filterDto,omitempty"`
	SortedPropertyName      string     `json:"sortedPropertyName,omitempty"`
	SortAscending           bool       `json:"sortAscending,omitempty"`
	Limit                   int        `json:"limit,omitempty"`
	Scope                   string     `json:"scope,omitempty"`
	SubscriptionDurationSec int64      `json:"subscriptionDurationSec,omitempty"`
	RegID                   string     `json:"regId,omitempty"`
	QueryID                 string     `json:"queryId,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func (e *Entity) ToDto() *EntityDto {
	return &EntityDto{
		ID:          e.ID,
		KindName:    e.Kind,
		Properties:  normalizeProperties(e.Properties),
		CreatedAt:   timePtr(e.CreatedAt),
		UpdatedAt:   timePtr(e.UpdatedAt),
		CreatedBy:   e.CreatedBy,
		UpdatedBy:   e.UpdatedBy,
		Owner:       e.Owner,
		Permissions: e.Permissions,
	}
}

func EntityFromDto(dto *EntityDto) *Entity {
	if dto == nil {
		return nil
	}
	return &Entity{
		Kind:        dto.KindName,
		ID:          dto.ID,
		Properties:  normalizeProperties(dto.Properties),
		CreatedAt:   timeVal(dto.CreatedAt),
		UpdatedAt:   timeVal(dto.UpdatedAt),
		CreatedBy:   dto.CreatedBy,
		UpdatedBy:   dto.UpdatedBy,
		Owner:       dto.Owner,
		Permissions: dto.Permissions,
	}
}

// EntityListToDto keeps the input order.
func EntityListToDto(entities []*Entity) *EntityListDto {
	out := &EntityListDto{Entries: make([]*EntityDto, 0, len(entities))}
	for _, e := range entities {
		out.Entries = append(out.Entries, e.ToDto())
	}
	return out
}

// EntitiesFromListDto treats a nil list or nil entries as empty.
func EntitiesFromListDto(dto *EntityListDto) []*Entity {
	if dto == nil {
		return []*Entity{}
	}
	out := make([]*Entity, 0, len(dto.Entries))
	for _, d := range dto.Entries {
		if d == nil {
			continue
		}
		out = append(out, EntityFromDto(d))
	}
	return out
}

// KeyListDto builds the id-only batch used by getAll and deleteAll.
func KeyListDto(kind string, ids []string) *EntityListDto {
	out := &EntityListDto{Entries: make([]*EntityDto, 0, len(ids))}
	for _, id := range ids {
		out.Entries = append(out.Entries, &EntityDto{ID: id, KindName: kind})
	}
	return out
}

func FilterToDto(f Filter) (*FilterDto, error) {
	switch n := f.(type) {
	case *Leaf:
		if n == nil {
			return nil, fmt.Errorf("%w: nil leaf", ErrInvalidFilter)
		}
		values := make([]any, 0, len(n.Values)+1)
		values = append(values, n.Property)
		for _, v := range n.Values {
			values = append(values, NormalizeValue(v))
		}
		return &FilterDto{Operator: string(n.Op), Values: values}, nil
	case *Composite:
		if n == nil {
			return nil, fmt.Errorf("%w: nil composite", ErrInvalidFilter)
		}
		subs := make([]*FilterDto, 0, len(n.Children))
		for _, child := range n.Children {
			sub, err := FilterToDto(child)
			if err != nil {
				return nil, err
			}
			subs = append(subs, sub)
		}
		return &FilterDto{Operator: string(n.Op), Subfilters: subs}, nil
	default:
		return nil, fmt.Errorf("%w: unknown node %T", ErrInvalidFilter, f)
	}
}

func FilterFromDto(dto *FilterDto) (Filter, error) {
	if dto == nil {
		return nil, fmt.Errorf("%w: nil dto", ErrInvalidFilter)
	}

	op := Op(dto.Operator)
	switch op {
	case OpAND, OpOR:
		if len(dto.Subfilters) == 0 {
			return nil, fmt.Errorf("%w: %s without subfilters", ErrInvalidFilter, op)
		}
		children := make([]Filter, 0, len(dto.Subfilters))
		for _, sub := range dto.Subfilters {
			child, err := FilterFromDto(sub)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return &Composite{Op: op, Children: children}, nil
	case OpEQ, OpLT, OpLE, OpGT, OpGE, OpNE, OpIN:
		if len(dto.Values) == 0 {
			return nil, fmt.Errorf("%w: %s without property", ErrInvalidFilter, op)
		}
		property, ok := dto.Values[0].(string)
		if !ok || property == "" {
			return nil, fmt.Errorf("%w: %s property is %T", ErrInvalidFilter, op, dto.Values[0])
		}
		operands := dto.Values[1:]
		if op != OpIN && len(operands) != 1 {
			return nil, fmt.Errorf("%w: %s(%s) needs exactly one value, got %d", ErrInvalidFilter, op, property, len(operands))
		}
		values := make([]any, len(operands))
		for i, v := range operands {
			values[i] = NormalizeValue(v)
		}
		return &Leaf{Op: op, Property: property, Values: values}, nil
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, dto.Operator)
	}
}

// ToDto converts the query for the wire. regID is attached only when the
// query subscribes to future writes.
func (q *Query) ToDto(regID string) (*QueryDto, error) {
	dto := &QueryDto{
		KindName:                q.KindName,
		Limit:                   q.Limit,
		Scope:                   string(q.Scope),
		SubscriptionDurationSec: int64(q.SubscriptionDuration / time.Second),
		QueryID:                 q.ID(),
	}
	if q.Filter != nil {
		f, err := FilterToDto(q.Filter)
		if err != nil {
			return nil, err
		}
		dto.Filter = f
	}
	if q.Sort != nil {
		dto.SortedPropertyName = q.Sort.Property
		dto.SortAscending = q.Sort.Order != OrderDesc
	}
	if q.Scope.IncludesFuture() {
		dto.RegID = regID
	}
	return dto, nil
}

func QueryFromDto(dto *QueryDto) (*Query, error) {
	if dto == nil {
		return nil, fmt.Errorf("query: nil dto")
	}
	q := &Query{
		KindName:             dto.KindName,
		Limit:                dto.Limit,
		Scope:                Scope(dto.Scope),
		SubscriptionDuration: time.Duration(dto.SubscriptionDurationSec) * time.Second,
		QueryID:              dto.QueryID,
	}
	if dto.Filter != nil {
		f, err := FilterFromDto(dto.Filter)
		if err != nil {
			return nil, err
		}
		q.Filter = f
	}
	if dto.SortedPropertyName != "" {
		order := OrderDesc
		if dto.SortAscending {
			order = OrderAsc
		}
		q.Sort = &Sort{Property: dto.SortedPropertyName, Order: order}
	}
	return q, nil
}
