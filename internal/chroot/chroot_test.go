package chroot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromChroot(t *testing.T) {
	tr := New("/home/u/cros", "", "")

	cases := []struct {
		in, want string
	}{
		{"/build/amd64-generic/usr/include", "/home/u/cros/chroot/build/amd64-generic/usr/include"},
		{"/mnt/host/source/src/platform2/foo.cc", "/home/u/cros/src/platform2/foo.cc"},
		{"/mnt/host/source", "/home/u/cros"},
		{"/mnt/host/sourcefoo/x", "/home/u/cros/chroot/mnt/host/sourcefoo/x"},
		// Host paths stay put.
		{"/home/u/cros/src/platform2/foo.cc", "/home/u/cros/src/platform2/foo.cc"},
		{"/home/u/cros/chroot/usr/bin", "/home/u/cros/chroot/usr/bin"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tr.FromChroot(tc.in), "FromChroot(%q)", tc.in)
	}
}

func TestToChrootIsInverse(t *testing.T) {
	tr := New("/home/u/cros", "/home/u/cros/chroot", "/mnt/host/source")

	for _, in := range []string{
		"/build/amd64-generic/var/cache/portage/chromeos-base/foo/out/Default",
		"/mnt/host/source/src/platform2/foo",
		"/usr/include",
	} {
		host := tr.FromChroot(in)
		back, err := tr.ToChroot(host)
		require.NoError(t, err)
		assert.Equal(t, in, back)
	}

	root, err := tr.ToChroot("/home/u/cros/chroot")
	require.NoError(t, err)
	assert.Equal(t, "/", root)

	_, err = tr.ToChroot("/opt/elsewhere")
	assert.Error(t, err)
}
