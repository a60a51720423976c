package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wavetermdev/waveterm-sub010/internal/shared/errs"
)

func TestHash(t *testing.T) {
	h := DefaultHasher()
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", h.Hash(nil))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", h.Hash([]byte("abc")))
	assert.Equal(t, "e3b0c442", ShortHash(h.Hash(nil)))
	assert.Equal(t, "abc", ShortHash("abc"))
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("remote_01-a", "remoteid", true))
	assert.NoError(t, ValidateID("", "remoteid", false))

	err := ValidateID("", "remoteid", true)
	assert.True(t, errs.IsValidation(err))

	err = ValidateID("bad id", "remoteid", true)
	assert.True(t, errs.IsValidation(err))

	err = ValidateID(strings.Repeat("a", MaxIDLength+1), "remoteid", true)
	assert.True(t, errs.IsValidation(err))
}

func TestValidateString(t *testing.T) {
	assert.NoError(t, ValidateString("héllo", "alias", 1, 5, true))
	assert.Error(t, ValidateString("toolong", "alias", 1, 5, true))
	assert.Error(t, ValidateString("a\x00b", "alias", 1, 5, true))
}

func TestSizeLimits(t *testing.T) {
	assert.NoError(t, ValidateInputSize(make([]byte, MaxInputDataSize)))
	assert.True(t, errs.IsValidation(ValidateInputSize(make([]byte, MaxInputDataSize+1))))

	assert.NoError(t, ValidateCmdInputText("ls -l"))
	assert.Error(t, ValidateCmdInputText(strings.Repeat("x", MaxCmdInputText+1)))
}
