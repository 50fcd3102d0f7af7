package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveSecret_DeterministicAndPerBot(t *testing.T) {
	a := DeriveSecret("global-secret", "bot-a")
	b := DeriveSecret("global-secret", "bot-b")
	again := DeriveSecret("global-secret", "bot-a")

	assert.Len(t, a, 32)
	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)
}

func TestDeriveSecret_DifferentGlobalSecretDiffers(t *testing.T) {
	a := DeriveSecret("secret-one", "bot-a")
	b := DeriveSecret("secret-two", "bot-a")
	assert.NotEqual(t, a, b)
}
