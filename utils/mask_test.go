package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskINN(t *testing.T) {
	assert.Equal(t, "770***93", MaskINN("7707083893"))
	assert.Equal(t, "5001****59", MaskINN("500100732259"))
	assert.Equal(t, "12345", MaskINN("12345"))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "j**n@example.com", MaskEmail("john@example.com"))
	assert.Equal(t, "a*@x.com", MaskEmail("ab@x.com"))
	assert.Equal(t, "a*@x.com", MaskEmail("a@x.com"))
	assert.Equal(t, "no-at-sign", MaskEmail("no-at-sign"))
}
