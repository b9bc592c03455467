package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func contextWith(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String(targetName, "", "")
	set.String(targetsName, "", "")
	require.NoError(t, set.Parse(args))
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestTargetHash(t *testing.T) {
	_, ok, err := targetHash(contextWith(t))
	require.NoError(t, err)
	assert.False(t, ok)

	valid := "4bc6435b409bcbabe53870dae0f03755f6aabb4594c5915ec983acf12a5d1fba"
	ph, ok, err := targetHash(contextWith(t, "--target", valid))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, valid, ph.String())

	_, _, err = targetHash(contextWith(t, "--target", "beef"))
	assert.ErrorContains(t, err, "--target")
}

func TestPassphraseFromEnv(t *testing.T) {
	t.Setenv(passphraseEnv, "hunter2")
	p, err := passphrase("unused: ")
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), p)
}

func TestLoadTreeRequiresTargets(t *testing.T) {
	e := &env{}
	_, err := e.loadTree(contextWith(t))
	assert.ErrorContains(t, err, "--targets is required")
}
