package models_test

import (
	"testing"
	"time"

	"github.com/mobilebackend/cloudbackend.go/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	e := models.NewEntity("Post").
		Put("topicId", "#cat").
		Put("score", 10).
		Put("tags", []string{"red", "blue"})
	e.CreatedAt = t0.Add(time.Second)

	cases := []struct {
		name   string
		filter models.Filter
		want   bool
	}{
		{"nil", nil, true},
		{"eq", models.Eq("topicId", "#cat"), true},
		{"eq other", models.Eq("topicId", "#dog"), false},
		{"gt created", models.Gt(models.PropCreatedAt, t0), true},
		{"gt created later", models.Gt(models.PropCreatedAt, t0.Add(time.Hour)), false},
		{"gt created as string", models.Gt(models.PropCreatedAt, t0.Format(time.RFC3339Nano)), true},
		{"int vs float", models.Ge("score", 9.5), true},
		{"lt", models.Lt("score", 10), false},
		{"le", models.Le("score", 10), true},
		{"ne", models.Ne("score", 11), true},
		{"missing property", models.Eq("nope", 1), false},
		{"type mismatch ne", models.Ne("topicId", 1), true},
		{"in", models.In("topicId", "#dog", "#cat"), true},
		{"list element", models.Eq("tags", "blue"), true},
		{"and", models.And(models.Eq("topicId", "#cat"), models.Gt(models.PropCreatedAt, t0)), true},
		{"or", models.Or(models.Eq("topicId", "#dog"), models.Eq("score", 10)), true},
		{"and false", models.And(models.Eq("topicId", "#cat"), models.Eq("score", 1)), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, models.Matches(tc.filter, e))
		})
	}
}
