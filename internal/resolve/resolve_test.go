package resolve

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

type bufferReader struct {
	base uintptr
	data []byte
}

func (b bufferReader) Read(address uintptr, size int) ([]byte, error) {
	start := int(address - b.base)
	if address < b.base || start+size > len(b.data) {
		return nil, fmt.Errorf("address 0x%X not mapped", address)
	}
	return b.data[start : start+size], nil
}

func callAt(disp int32) []byte {
	code := []byte{0xE8, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(code[1:], uint32(disp))
	return code
}

func TestCallTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		address  uintptr
		disp     int32
		expected uintptr
	}{
		{name: "forward", address: 0x140001000, disp: 0x1234, expected: 0x140001000 + 5 + 0x1234},
		{name: "backward", address: 0x140001000, disp: -0x800, expected: 0x140001000 + 5 - 0x800},
		{name: "zero", address: 0x1000, disp: 0, expected: 0x1005},
		{name: "max negative", address: 0x7FF700000000, disp: -0x80000000, expected: 0x7FF700000000 + 5 - 0x80000000},
		{name: "max positive", address: 0x7FF700000000, disp: 0x7FFFFFFF, expected: 0x7FF700000000 + 5 + 0x7FFFFFFF},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			target, err := CallTarget(test.address, callAt(test.disp))
			assert.NoError(t, err)
			assert.Equal(t, test.expected, target)
		})
	}
}

func TestCallTargetOpcodeMismatch(t *testing.T) {
	t.Parallel()

	_, err := CallTarget(0x1000, []byte{0xE9, 0, 0, 0, 0})
	assert.True(t, errors.Is(err, ErrOpcodeMismatch))

	_, err = CallTarget(0x1000, []byte{0xE8, 0})
	assert.Error(t, err)
}

func TestAbsolute(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uintptr(0x7FF7328A2710), Absolute(0x7FF731920000, 0xF82710))
	assert.Equal(t, uint64(0xF82710), Relative(0x7FF731920000, 0x7FF7328A2710))
}

func TestResolverReadsMemory(t *testing.T) {
	t.Parallel()

	data := make([]byte, 0x40)
	copy(data[0x10:], callAt(-0x10))
	data[0x20] = 0xFF
	r := New(bufferReader{base: 0x400000, data: data})

	target, err := r.CallTarget(0x400010)
	assert.NoError(t, err)
	assert.Equal(t, uintptr(0x400005), target)

	preImage, err := r.Expect(0x400020, 0xFF, 6)
	assert.NoError(t, err)
	assert.Len(t, preImage, 6)

	_, err = r.CallTarget(0x400020)
	assert.True(t, errors.Is(err, ErrOpcodeMismatch))

	_, err = r.CallTarget(0x500000)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrOpcodeMismatch))
}
