package common

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsInvalidWithoutServers(t *testing.T) {
	conf := NewDefaultClientConfig()
	assert.NotNil(t, conf.Validate())

	conf.Servers = []Server{{Address: "127.0.0.1", Port: "7777"}}
	assert.Nil(t, conf.Validate())
}

func TestLoadFromFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := path.Join(dir, "boreal.yaml")
	contents := `
servers:
  - address: "10.0.0.1"
    port: "7777"
  - address: "10.0.0.2"
    port: "7777"
database: "movies"
maxTransactionRetryTimeSeconds: 5
`
	err := os.WriteFile(cfgPath, []byte(contents), 0644)
	assert.Nil(t, err)

	conf := NewDefaultClientConfig()
	conf.LoadFromFile(cfgPath)

	assert.Nil(t, conf.Validate())
	assert.Equal(t, 2, len(conf.Servers))
	assert.Equal(t, "movies", conf.Database)
	assert.Equal(t, 5, conf.MaxTransactionRetryTimeSeconds)

	// untouched fields keep their defaults
	assert.Equal(t, 10, conf.MaxIdleConnections)
	assert.Equal(t, 1000, conf.InitialRetryDelayMillis)
}

func TestLoadFromFileMissingFileLeavesConfigUntouched(t *testing.T) {
	conf := NewDefaultClientConfig()
	conf.LoadFromFile("/nonexistent/boreal.yaml")
	assert.Equal(t, 10, conf.MaxIdleConnections)
	assert.Equal(t, 0, len(conf.Servers))
}

func TestProtectedBoolSetIfNot(t *testing.T) {
	var b ProtectedBool
	assert.False(t, b.Get())
	assert.True(t, b.SetIfNot(true))
	assert.True(t, b.Get())
	assert.False(t, b.SetIfNot(true))
	assert.True(t, b.Get())
}
