package secretbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSealAndOpen(t *testing.T) {
	box, err := New("master-key")
	assert.NoError(t, err)

	token, err := box.Seal("hunter2")
	assert.NoError(t, err)
	assert.NotContains(t, token, "hunter2")

	plain, err := box.Open(token)
	assert.NoError(t, err)
	assert.Equal(t, "hunter2", plain)
}

func TestSeal_FreshNoncePerCall(t *testing.T) {
	box, _ := New("master-key")

	a, _ := box.Seal("same secret")
	b, _ := box.Seal("same secret")
	assert.NotEqual(t, a, b)
}

func TestOpen_RejectsTampering(t *testing.T) {
	box, _ := New("master-key")
	other, _ := New("different-key")

	token, _ := box.Seal("hunter2")

	_, err := other.Open(token)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = box.Open("not base64 at all!!!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = box.Open("c2hvcnQ=")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestNew_EmptyMasterKey(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
