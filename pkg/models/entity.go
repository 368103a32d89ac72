package models

import (
	"fmt"
	"maps"
	"time"
)

// Property names the backend maintains on every entity. They can be used in
// filters and sorts like any user property.
const (
	PropCreatedAt = "_createdAt"
	PropUpdatedAt = "_updatedAt"
	PropCreatedBy = "_createdBy"
	PropUpdatedBy = "_updatedBy"
	PropOwner     = "_owner"
)

// Entity is a schemaless record stored by the backend.
//
// Kind and ID together identify a persisted entity. ID is empty until the
// entity has been inserted, and the metadata fields are assigned by the
// backend on every write.
type Entity struct {
	Kind       string
	ID         string
	Properties map[string]any

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CreatedBy   string
	UpdatedBy   string
	Owner       string
	Permissions string
}

func NewEntity(kind string) *Entity {
	return &Entity{
		Kind:       kind,
		Properties: make(map[string]any),
	}
}

// Put sets a property. Supported values are strings, integers, floats,
// booleans, time.Time and slices of those.
func (e *Entity) Put(key string, value any) *Entity {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	e.Properties[key] = NormalizeValue(value)
	return e
}

func (e *Entity) Get(key string) (any, bool) {
	v, ok := e.Properties[key]
	return v, ok
}

func (e *Entity) GetString(key string) string {
	s, _ := e.Properties[key].(string)
	return s
}

func (e *Entity) GetTime(key string) (time.Time, bool) {
	t, ok := e.Properties[key].(time.Time)
	return t, ok
}

func (e *Entity) Remove(key string) {
	delete(e.Properties, key)
}

// IsPersisted reports whether the backend has assigned an id.
func (e *Entity) IsPersisted() bool {
	return e.ID != ""
}

func (e *Entity) Clone() *Entity {
	c := *e
	c.Properties = maps.Clone(e.Properties)
	return &c
}

func (e *Entity) String() string {
	return fmt.Sprintf("Entity(%s/%s, createdAt=%s, props=%v)",
		e.Kind, e.ID, e.CreatedAt.Format(time.RFC3339Nano), e.Properties)
}
