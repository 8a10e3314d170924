package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthetic(t *testing.T) {
	p := Synthetic("", 0)
	assert.Equal(t, "15500001000", p.Phone)
	assert.Equal(t, "TestUser0", p.Name)
	assert.Equal(t, DefaultPassword, p.Password)

	p = Synthetic("1390000", 199)
	assert.Equal(t, "13900001199", p.Phone)
	assert.Equal(t, 199, p.Index)
}

func TestRandomPrefix(t *testing.T) {
	prefix, err := RandomPrefix()
	require.NoError(t, err)
	require.Len(t, prefix, 7)
	assert.Equal(t, "155", prefix[:3])
	for _, c := range prefix {
		assert.True(t, c >= '0' && c <= '9', "non-digit %q", c)
	}
	assert.Len(t, Synthetic(prefix, 5).Phone, 11)
}
