package bitset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetClearTest(t *testing.T) {
	s := New(10)
	assert.False(t, s.Test(3), "bit 3 should start clear")
	s.Set(3)
	assert.True(t, s.Test(3), "bit 3 should be set")
	s.Clear(3)
	assert.False(t, s.Test(3), "bit 3 should be clear again")
}

func TestSetRange(t *testing.T) {
	s := New(10)
	s.SetRange(2, 5)
	for i := 2; i <= 5; i++ {
		assert.True(t, s.Test(i), "bit %d should be set", i)
	}
	assert.False(t, s.Test(1), "bit outside range must stay clear")
	assert.False(t, s.Test(6), "bit outside range must stay clear")
}

func TestSetRangeClampsToBounds(t *testing.T) {
	s := New(10)
	s.SetRange(-5, 100)
	for i := 0; i < 10; i++ {
		assert.True(t, s.Test(i), "bit %d should be set after out-of-range SetRange", i)
	}
}

func TestNextClear(t *testing.T) {
	s := New(8)
	s.SetRange(0, 3)
	assert.Equal(t, 4, s.NextClear(0))
	s.SetRange(4, 7)
	assert.Equal(t, -1, s.NextClear(0), "NextClear should report -1 when full")
}

func TestPrevClear(t *testing.T) {
	s := New(8)
	s.SetRange(4, 7)
	assert.Equal(t, 3, s.PrevClear(7))
	s.SetRange(0, 3)
	assert.Equal(t, -1, s.PrevClear(7), "PrevClear should report -1 when full")
}

func TestCountClear(t *testing.T) {
	s := New(65536)
	s.SetRange(0, 1023)
	assert.Equal(t, 65536-1024, s.CountClear())
}
