package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPortAddress(t *testing.T) {
	assert.Equal(t, ":8080", portAddress(8080))
}

func TestErrRequiredEnv(t *testing.T) {
	err := errRequiredEnv("MOM_SESSION_SECRET")
	assert.ErrorContains(t, err, "MOM_SESSION_SECRET")
}
