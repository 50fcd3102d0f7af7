package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsufficientTokensError_Message(t *testing.T) {
	err := &InsufficientTokensError{Required: 5, Available: 2, Action: "x"}
	assert.Contains(t, err.Error(), "need 5")
	assert.Contains(t, err.Error(), "have 2")
	assert.Contains(t, err.Error(), "action=x")
}
