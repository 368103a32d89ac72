package cloudbackend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureCompletesOnce(t *testing.T) {
	f := newFuture[int]()

	_, _, ok := f.Result()
	assert.False(t, ok)

	assert.True(t, f.complete(1, nil))
	assert.False(t, f.complete(2, errors.New("late")))

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err, ok = f.Result()
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 1, v)

	select {
	case <-f.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestFutureAwaitHonoursContext(t *testing.T) {
	f := newFuture[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandlerFuncs(t *testing.T) {
	var got []string
	h := HandlerFuncs[string]{
		Complete: func(s string) { got = append(got, "ok:"+s) },
	}
	h.OnComplete("a")
	h.OnError(errors.New("ignored"))
	assert.Equal(t, []string{"ok:a"}, got)
}
