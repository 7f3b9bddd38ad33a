package errkind

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/tj/assert"
)

func TestOf(t *testing.T) {
	t.Run("survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", NewPermanent("decode", errors.New("bad bytes")))
		assert.Equal(t, Permanent, Of(err))
		assert.Equal(t, "outer: decode: bad bytes", err.Error())
	})

	t.Run("deadline is transient", func(t *testing.T) {
		err := fmt.Errorf("read: %w", context.DeadlineExceeded)
		assert.True(t, IsTransient(err))
	})

	t.Run("plain errors are unknown", func(t *testing.T) {
		assert.Equal(t, Unknown, Of(errors.New("boom")))
		assert.Equal(t, Unknown, Of(nil))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, NewFatal("boot", nil))
	})
}
