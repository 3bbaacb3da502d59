package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrors_AreDistinct(t *testing.T) {
	assert.NotEqual(t, ErrMissingQueryService, ErrInvalidPorts)
	assert.Contains(t, ErrMissingQueryService.Error(), "query service")
	assert.Contains(t, ErrInvalidPorts.Error(), "invalid ports")
}
