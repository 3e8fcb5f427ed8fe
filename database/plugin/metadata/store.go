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

package metadata

import (
	"fmt"

	"github.com/blinklabs-io/votesync/database/plugin"
	"gorm.io/gorm"

	// Register storage plugins
	_ "github.com/blinklabs-io/votesync/database/plugin/metadata/mysql"
	_ "github.com/blinklabs-io/votesync/database/plugin/metadata/postgres"
	_ "github.com/blinklabs-io/votesync/database/plugin/metadata/sqlite"
)

const DefaultPlugin = "sqlite"

// MetadataStore is a started relational store backing the read model
type MetadataStore interface {
	plugin.Plugin
	Close() error
	DB() *gorm.DB
	Transaction() *gorm.DB
}

// New creates and starts the named metadata store plugin
func New(pluginName string, opts plugin.Options) (MetadataStore, error) {
	if pluginName == "" {
		pluginName = DefaultPlugin
	}
	p, err := plugin.StartPlugin(plugin.PluginTypeMetadata, pluginName, opts)
	if err != nil {
		return nil, err
	}
	store, ok := p.(MetadataStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"plugin '%s' does not implement a metadata store",
			pluginName,
		)
	}
	return store, nil
}
