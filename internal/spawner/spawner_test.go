package spawner

import (
	"os"
	"os/user"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawn_RejectsEmptyPath(t *testing.T) {
	s := New()
	_, err := s.Spawn(Spec{})
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestSpawn_StartsRealProcessAndReturnsPID(t *testing.T) {
	s := New()
	pid, err := s.Spawn(Spec{Path: "/bin/true"})
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	proc, err := os.FindProcess(pid)
	require.NoError(t, err)
	_, _ = proc.Wait()
}

func TestBuildEnv_IncludesMainPIDAndNotifySocket(t *testing.T) {
	env := buildEnv(Spec{MainPID: 4242, NotifySocket: "/run/sysmasterd/notify"})
	assert.Contains(t, env, "MAINPID=4242")
	assert.Contains(t, env, "NOTIFY_SOCKET=/run/sysmasterd/notify")
}

func TestBuildEnv_OmitsMainPIDWhenZero(t *testing.T) {
	env := buildEnv(Spec{})
	for _, kv := range env {
		assert.NotContains(t, kv, "MAINPID=")
	}
}

func TestCredentialAttr_EmptyUserAndGroupReturnsNil(t *testing.T) {
	attr, err := credentialAttr("", "")
	require.NoError(t, err)
	assert.Nil(t, attr)
}

func TestCredentialAttr_ResolvesCurrentUser(t *testing.T) {
	me, err := user.Current()
	require.NoError(t, err)

	attr, err := credentialAttr(me.Username, "")
	require.NoError(t, err)
	require.NotNil(t, attr)
	require.NotNil(t, attr.Credential)

	wantUID, _ := strconv.ParseUint(me.Uid, 10, 32)
	assert.Equal(t, uint32(wantUID), attr.Credential.Uid)
}

func TestCredentialAttr_UnknownUserErrors(t *testing.T) {
	_, err := credentialAttr("no-such-sysmasterd-test-user", "")
	assert.Error(t, err)
}
