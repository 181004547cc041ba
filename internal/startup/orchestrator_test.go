// SPDX-License-Identifier: MIT

package startup

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/fault"
	"github.com/snapdog/snapdog/internal/snapcast"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		System:   config.SystemConfig{DataDir: t.TempDir()},
		API:      config.APIConfig{ListenAddr: "127.0.0.1:18573"},
		Snapcast: config.SnapcastConfig{Host: "127.0.0.1", Port: 1705},
	}
}

func TestValidatePassesOnCleanEnvironment(t *testing.T) {
	o := New(testConfig(t))
	// Service probes must stay warn-only even against a dead endpoint.
	require.NoError(t, o.Validate(context.Background()))
}

func TestBusyPortLogsAlternativeAndProceeds(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t)
	cfg.API.ListenAddr = ln.Addr().String()

	o := New(cfg)
	assert.NoError(t, o.validatePorts(context.Background()), "busy port keeps the configured address")
}

func TestInvalidListenAddrFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.ListenAddr = "no-port-here"

	o := New(cfg)
	err := o.validatePorts(context.Background())
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindInvalid))
}

func TestDirectoriesCreatedAndWriteTested(t *testing.T) {
	cfg := testConfig(t)
	cfg.System.DataDir = filepath.Join(t.TempDir(), "nested", "data")

	o := New(cfg)
	require.NoError(t, o.validateDirectories(context.Background()))

	info, err := os.Stat(cfg.System.DataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = os.Stat(filepath.Join(cfg.System.DataDir, ".snapdog-write-test"))
	assert.True(t, os.IsNotExist(err), "write probe must be cleaned up")
}

func TestUnwritableDirectoryFails(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	base := t.TempDir()
	require.NoError(t, os.Chmod(base, 0o500))
	t.Cleanup(func() { _ = os.Chmod(base, 0o700) })

	cfg := testConfig(t)
	cfg.System.DataDir = filepath.Join(base, "data")

	o := New(cfg)
	assert.Error(t, o.validateDirectories(context.Background()))
}

type fakePinger struct {
	failures int
	calls    int
}

func (f *fakePinger) GetServerStatus(context.Context) (*snapcast.ServerStatus, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, fault.Unavailable("not yet")
	}
	return &snapcast.ServerStatus{}, nil
}

func TestWaitForSnapcastPollsUntilReady(t *testing.T) {
	o := New(testConfig(t))
	o.pollEvery = 5 * time.Millisecond
	o.waitCap = time.Second

	p := &fakePinger{failures: 2}
	o.WaitForSnapcast(context.Background(), p)
	assert.Equal(t, 3, p.calls)
}

func TestWaitForSnapcastGivesUpAfterCap(t *testing.T) {
	o := New(testConfig(t))
	o.pollEvery = 5 * time.Millisecond
	o.waitCap = 20 * time.Millisecond

	p := &fakePinger{failures: 1000}
	done := make(chan struct{})
	go func() {
		o.WaitForSnapcast(context.Background(), p)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not respect its cap")
	}
	assert.Greater(t, p.calls, 1)
}
