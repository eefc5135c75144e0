package fakeapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

type cleanups []func()

func (c *cleanups) Cleanup(fn func()) { *c = append(*c, fn) }

func TestStart_ClosesOnCleanup(t *testing.T) {
	t.Parallel()
	var c cleanups
	base := New().Start(&c)
	require.Len(t, c, 1)

	resp, err := http.Get(base + "/admin/rejection-reasons")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	c[0]()
	_, err = http.Get(base + "/admin/rejection-reasons")
	require.Error(t, err)
}
