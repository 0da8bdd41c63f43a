package stack_test

import (
	"testing"

	"github.com/lestrrat-go/sgml/internal/stack"
	"github.com/stretchr/testify/assert"
)

func TestPushPopReusesSlots(t *testing.T) {
	var s stack.Stack[int]

	p := s.Push()
	*p = 1
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, 1, s.Size())

	s.Pop()
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, 1, s.Size(), "slot should be retained after pop")

	p2 := s.Push()
	assert.Equal(t, 1, s.Size(), "push after pop should reuse the retained slot")
	*p2 = 2
	assert.Equal(t, 2, s.Pop())
}

func TestAtAndRemoveAt(t *testing.T) {
	var s stack.Stack[string]
	for _, v := range []string{"a", "b", "c"} {
		p := s.Push()
		*p = v
	}

	assert.Equal(t, "b", *s.At(1))
	s.RemoveAt(1)
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, "c", *s.At(1))
	assert.Equal(t, "a", *s.At(0))
}

func TestPeekEmpty(t *testing.T) {
	var s stack.Stack[int]
	assert.Nil(t, s.Peek())
}

func TestResetRetainsCapacity(t *testing.T) {
	var s stack.Stack[int]
	for i := 0; i < 5; i++ {
		*s.Push() = i
	}
	s.Reset()
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, 5, s.Size())
}
