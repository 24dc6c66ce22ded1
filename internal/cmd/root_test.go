package cmd

import (
	"errors"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/casegen/internal/config"
	apperrors "github.com/3leaps/casegen/internal/errors"
	"github.com/3leaps/casegen/test/fakeapi"
)

func TestSetVersionInfo(t *testing.T) {
	orig := versionInfo
	t.Cleanup(func() { versionInfo = orig })

	for _, v := range [][3]string{
		{"1.4.0", "9f2c1ab", "2026-10-15"},
		{"dev", "unknown", "unknown"},
		{"", "", ""},
	} {
		SetVersionInfo(v[0], v[1], v[2])
		assert.Equal(t, v[0], versionInfo.Version)
		assert.Equal(t, v[1], versionInfo.Commit)
		assert.Equal(t, v[2], versionInfo.BuildDate)
	}
}

func TestConfigLoadedBeforeCommands(t *testing.T) {
	api := fakeapi.New(t)

	orig := appIdentity
	appIdentity = nil
	t.Cleanup(func() { appIdentity = orig })
	assert.Nil(t, GetAppIdentity())

	require.NoError(t, runCLI(t, api, t.TempDir(), "version"))

	require.NotNil(t, GetAppIdentity())
	assert.Equal(t, config.DefaultIdentity, *GetAppIdentity())
	require.NotNil(t, appConfig)
	assert.Equal(t, api.URL(), appConfig.API.BaseURL)
}

func TestInvalidBaseURLExitsWithUsageCode(t *testing.T) {
	api := fakeapi.New(t)
	err := runCLI(t, api, t.TempDir(), "--base-url", "::not a url", "dashboard")

	require.Error(t, err)
	assert.Equal(t, foundry.ExitInvalidArgument, apperrors.ExitCode(err))
}

func TestExitError(t *testing.T) {
	cause := errors.New("boom")
	err := exitError(foundry.ExitFileWriteError, "Export failed", cause)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, foundry.ExitFileWriteError, appErr.ExitCode)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "Export failed")
	assert.Equal(t, foundry.ExitFileWriteError, apperrors.ExitCode(err))
}

func TestRootCommandTree(t *testing.T) {
	for _, name := range []string{"files", "cases", "tasks", "mindmap", "dashboard", "jobs", "serve", "doctor", "version"} {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
	for _, flag := range []string{"base-url", "json", "verbose", "yes"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
}
