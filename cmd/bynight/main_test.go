package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/bynight/config"
)

func TestRootCommand(t *testing.T) {
	root := newRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"consume", "import", "migrate"}, names)

	importCmd, _, err := root.Find([]string{"import"})
	require.NoError(t, err)
	assert.NotNil(t, importCmd.Flags().Lookup("source"))
	assert.NotNil(t, importCmd.Flags().Lookup("file"))
}

func TestNewZapLogger(t *testing.T) {
	_, err := newZapLogger(&config.Config{LogLevel: "debug", PrettyLogs: true})
	assert.NoError(t, err)

	_, err = newZapLogger(&config.Config{LogLevel: "chatty"})
	assert.Error(t, err)
}

func TestIntakeRejectsUnknownTransport(t *testing.T) {
	a := &app{cfg: &config.Config{IntakeTransport: "carrier-pigeon"}}
	_, err := a.intake(nil)
	assert.ErrorContains(t, err, "carrier-pigeon")

	a.cfg.IntakeTransport = "amqp"
	dep, err := a.intake(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"importer", "server"}, dep.DependsOn())
}
