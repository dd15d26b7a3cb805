package edgesrv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHost(t *testing.T) {
	cases := map[string]string{
		"Example.COM":     "example.com",
		"example.com:8080": "example.com",
		"example.com.":     "example.com",
		"EXAMPLE.com:443.": "example.com",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeHost(in), "input %q", in)
	}
}
