package models_test

import (
	"testing"
	"time"

	"github.com/mobilebackend/cloudbackend.go/internal/codec"
	"github.com/mobilebackend/cloudbackend.go/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterBuilders(t *testing.T) {
	f := models.And(models.Eq("topicId", "x"), models.Gt(models.PropCreatedAt, int32(5)))

	c, ok := f.(*models.Composite)
	require.True(t, ok)
	assert.Equal(t, models.OpAND, c.Operator())
	require.Len(t, c.Children, 2)

	gt := c.Children[1].(*models.Leaf)
	assert.Equal(t, models.OpGT, gt.Op)
	assert.Equal(t, models.PropCreatedAt, gt.Property)
	assert.Equal(t, int64(5), gt.Value())
	assert.Equal(t, `AND(EQ(topicId,"x"),GT(_createdAt,5))`, f.String())
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, models.Validate(models.In("tag", "a", "b")))
	assert.NoError(t, models.Validate(models.Or(models.Eq("a", 1))))

	cases := map[string]models.Filter{
		"nil":              nil,
		"empty and":        models.And(),
		"empty or":         models.Or(),
		"no property":      models.Eq("", 1),
		"composite leaf":   &models.Leaf{Op: models.OpAND, Property: "a", Values: []any{1}},
		"leaf composite":   &models.Composite{Op: models.OpEQ, Children: []models.Filter{models.Eq("a", 1)}},
		"two values":       &models.Leaf{Op: models.OpEQ, Property: "a", Values: []any{1, 2}},
		"nested invalid":   models.And(models.Eq("a", 1), models.Or()),
		"unknown operator": &models.Leaf{Op: "LIKE", Property: "a", Values: []any{1}},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, models.Validate(f), models.ErrInvalidFilter)
		})
	}
}

func TestFilterRoundTripThroughCBOR(t *testing.T) {
	t0 := time.Date(2013, 6, 1, 12, 30, 0, 0, time.UTC)
	original := models.And(
		models.Eq("topicId", "x"),
		models.Gt(models.PropCreatedAt, t0),
		models.Or(
			models.Le("score", 2.5),
			models.Ne("hidden", true),
			models.In("tag", "#dog", "#cat", 7),
		),
	)

	dto, err := models.FilterToDto(original)
	require.NoError(t, err)

	c := codec.NewCBOR()
	data, err := c.Marshal(dto)
	require.NoError(t, err)

	var decoded models.FilterDto
	require.NoError(t, c.Unmarshal(data, &decoded))

	back, err := models.FilterFromDto(&decoded)
	require.NoError(t, err)
	assert.Equal(t, original, back)
	assert.Equal(t, original.String(), back.String())
}

func TestFilterFromDtoErrors(t *testing.T) {
	cases := map[string]*models.FilterDto{
		"nil":              nil,
		"unknown operator": {Operator: "LIKE", Values: []any{"a", 1}},
		"and without subs": {Operator: "AND"},
		"leaf no values":   {Operator: "EQ"},
		"leaf non string":  {Operator: "EQ", Values: []any{1, 2}},
		"leaf no operand":  {Operator: "GT", Values: []any{"a"}},
		"bad child":        {Operator: "OR", Subfilters: []*models.FilterDto{{Operator: "EQ"}}},
	}
	for name, dto := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := models.FilterFromDto(dto)
			assert.ErrorIs(t, err, models.ErrInvalidFilter)
		})
	}
}
