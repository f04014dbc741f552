package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRoomID(t *testing.T) {
	assert.NoError(t, ValidateRoomID("my-call"))
	assert.NoError(t, ValidateRoomID("комната 42")) // keys are opaque
	assert.Error(t, ValidateRoomID(""))
	assert.Error(t, ValidateRoomID("   "))
	assert.Error(t, ValidateRoomID(strings.Repeat("x", 129)))
}

func TestValidateIdentity(t *testing.T) {
	assert.NoError(t, ValidateIdentity("b3c1a6de-7f2a-4b76-9a90-1f1f4a20c9d1"))
	assert.Error(t, ValidateIdentity(""))
	assert.Error(t, ValidateIdentity(strings.Repeat("x", 257)))
}

func TestValidateLanguage(t *testing.T) {
	assert.NoError(t, ValidateLanguage(""))
	assert.NoError(t, ValidateLanguage("en"))
	assert.NoError(t, ValidateLanguage("en-US"))
	assert.NoError(t, ValidateLanguage("zh-Hant-TW"))
	assert.Error(t, ValidateLanguage("not a language"))
	assert.Error(t, ValidateLanguage("-en"))
}
