// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package plugin_test

import (
	"errors"
	"testing"

	"github.com/blinklabs-io/votesync/database/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock plugin implementation for testing
type mockPlugin struct {
	opts    plugin.Options
	started bool
}

func (m *mockPlugin) Start() error {
	m.started = true
	return nil
}

func (m *mockPlugin) Stop() error { return nil }

func newMock(opts plugin.Options) plugin.Plugin {
	return &mockPlugin{opts: opts}
}

func TestRegister(t *testing.T) {
	pluginName := "test-plugin-" + t.Name()
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeMetadata,
		Name:               pluginName,
		NewFromOptionsFunc: newMock,
	})

	p := plugin.GetPlugin(
		plugin.PluginTypeMetadata,
		pluginName,
		plugin.Options{DataDir: "/tmp/test"},
	)
	require.NotNil(t, p)
	mock, ok := p.(*mockPlugin)
	require.True(t, ok, "expected *mockPlugin, got %T", p)
	assert.Equal(t, "/tmp/test", mock.opts.DataDir)

	found := false
	for _, pl := range plugin.GetPlugins(plugin.PluginTypeMetadata) {
		if pl.Name == pluginName {
			found = true
			break
		}
	}
	assert.True(t, found, "plugin not in GetPlugins list")
}

func TestRegisterReplaces(t *testing.T) {
	pluginName := "test-replace-" + t.Name()
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeMetadata,
		Name:               pluginName,
		Description:        "first",
		NewFromOptionsFunc: newMock,
	})
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeMetadata,
		Name:               pluginName,
		Description:        "second",
		NewFromOptionsFunc: newMock,
	})
	count := 0
	for _, pl := range plugin.GetPlugins(plugin.PluginTypeMetadata) {
		if pl.Name == pluginName {
			count++
			assert.Equal(t, "second", pl.Description)
		}
	}
	assert.Equal(t, 1, count)
}

func TestGetPluginsSorted(t *testing.T) {
	for _, name := range []string{"zz-sorted", "aa-sorted", "mm-sorted"} {
		plugin.Register(plugin.PluginEntry{
			Type:               plugin.PluginTypeMetadata,
			Name:               name,
			NewFromOptionsFunc: newMock,
		})
	}
	plugins := plugin.GetPlugins(plugin.PluginTypeMetadata)
	for i := 1; i < len(plugins); i++ {
		assert.LessOrEqual(t, plugins[i-1].Name, plugins[i].Name)
	}
	// Unknown plugin types have no entries
	assert.Empty(t, plugin.GetPlugins(plugin.PluginType(99)))
}

func TestGetPluginNotFound(t *testing.T) {
	assert.Nil(t, plugin.GetPlugin(
		plugin.PluginTypeMetadata,
		"non-existent-"+t.Name(),
		plugin.Options{},
	))
}

func TestStartPlugin(t *testing.T) {
	pluginName := "test-start-" + t.Name()
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeMetadata,
		Name:               pluginName,
		NewFromOptionsFunc: newMock,
	})
	p, err := plugin.StartPlugin(plugin.PluginTypeMetadata, pluginName, plugin.Options{})
	require.NoError(t, err)
	assert.True(t, p.(*mockPlugin).started)

	_, err = plugin.StartPlugin(plugin.PluginTypeMetadata, "missing-"+t.Name(), plugin.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metadata plugin")
}

func TestStartPluginError(t *testing.T) {
	startErr := errors.New("boom")
	pluginName := "test-error-" + t.Name()
	plugin.Register(plugin.PluginEntry{
		Type: plugin.PluginTypeMetadata,
		Name: pluginName,
		NewFromOptionsFunc: func(plugin.Options) plugin.Plugin {
			return plugin.NewErrorPlugin(startErr)
		},
	})
	_, err := plugin.StartPlugin(plugin.PluginTypeMetadata, pluginName, plugin.Options{})
	require.ErrorIs(t, err, startErr)
}
