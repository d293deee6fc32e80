package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputBuffer(t *testing.T) {
	t.Run("success - output below the limit is kept verbatim", func(t *testing.T) {
		// arrange
		ob := NewOutputBuffer(64)

		// act
		_, err := ob.Write([]byte("hello\n"))

		// assert
		assert.Nil(t, err)
		assert.Equal(t, "hello\n", ob.String())
		assert.False(t, ob.Truncated())
	})

	t.Run("success - oldest bytes dropped over the limit", func(t *testing.T) {
		// arrange
		ob := NewOutputBuffer(8)

		// act
		_, err := ob.Write([]byte("0123456789"))

		// assert
		assert.Nil(t, err)
		assert.Equal(t, "23456789", ob.String())
		assert.True(t, ob.Truncated())
	})

	t.Run("success - newest output survives across writes", func(t *testing.T) {
		// arrange
		ob := NewOutputBuffer(16)

		// act
		for i := 0; i < 10; i++ {
			_, _ = ob.Write([]byte(strings.Repeat("x", 4)))
		}
		_, _ = ob.Write([]byte("tail"))

		// assert
		assert.True(t, ob.Truncated())
		assert.Len(t, ob.String(), 16)
		assert.True(t, strings.HasSuffix(ob.String(), "tail"))
	})
}
