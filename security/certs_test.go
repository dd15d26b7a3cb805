package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCertsCheckHostUnreachable(t *testing.T) {
	years, months, days := 0, 0, 14
	result := CertsCheckHost("127.0.0.1:1", &years, &months, &days)
	assert.Error(t, result.Err)
	assert.Empty(t, result.CommonName)
}
