package models_test

import (
	"testing"
	"time"

	"github.com/mobilebackend/cloudbackend.go/internal/codec"
	"github.com/mobilebackend/cloudbackend.go/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityPutNormalizes(t *testing.T) {
	e := models.NewEntity("Guestbook").
		Put("count", 3).
		Put("ratio", float32(0.5)).
		Put("tags", []string{"a", "b"})

	assert.Equal(t, int64(3), e.Properties["count"])
	assert.Equal(t, float64(0.5), e.Properties["ratio"])
	assert.Equal(t, []any{"a", "b"}, e.Properties["tags"])
	assert.False(t, e.IsPersisted())
}

func TestEntityDtoRoundTrip(t *testing.T) {
	created := time.Date(2013, 5, 1, 10, 0, 0, 0, time.UTC)
	e := models.NewEntity("Guestbook").Put("message", "hello").Put("when", created)
	e.ID = "42"
	e.CreatedAt = created
	e.UpdatedAt = created.Add(time.Minute)
	e.CreatedBy = "alice@example.com"

	c := codec.NewCBOR()
	data, err := c.Marshal(e.ToDto())
	require.NoError(t, err)

	var dto models.EntityDto
	require.NoError(t, c.Unmarshal(data, &dto))
	assert.Equal(t, e, models.EntityFromDto(&dto))
}

func TestEntitiesFromListDto(t *testing.T) {
	assert.Empty(t, models.EntitiesFromListDto(nil))
	assert.Empty(t, models.EntitiesFromListDto(&models.EntityListDto{}))

	list := models.EntitiesFromListDto(&models.EntityListDto{Entries: []*models.EntityDto{
		{ID: "1", KindName: "k"}, nil, {ID: "2", KindName: "k"},
	}})
	require.Len(t, list, 2)
	assert.Equal(t, "1", list[0].ID)
	assert.Equal(t, "2", list[1].ID)
}

func TestEntityClone(t *testing.T) {
	e := models.NewEntity("k").Put("a", "b")
	c := e.Clone()
	c.Put("a", "c")
	assert.Equal(t, "b", e.GetString("a"))
	assert.Equal(t, "c", c.GetString("a"))
}
