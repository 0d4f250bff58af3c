/**
 * Copyright 2024 The BorealDB Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package common

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Server indicates a single borealdb server instance info
type Server struct {
	Address string `yaml:"address"`
	Port    string `yaml:"port"`
}

// ClientConfig defines the configuration settings for the BorealDB client driver.
type ClientConfig struct {
	// Servers contains the list of the borealdb instances the driver may connect to.
	Servers []Server `yaml:"servers"`

	// Database is the target database name used when a session doesn't specify one.
	Database string `yaml:"database"`

	// MaxIdleConnections bounds the number of pooled idle connections per server.
	MaxIdleConnections int `yaml:"maxIdleConnections"`

	// MaxTransactionRetryTimeSeconds is the ceiling on cumulative retry time of
	// the transaction functions.
	MaxTransactionRetryTimeSeconds int `yaml:"maxTransactionRetryTimeSeconds"`

	// InitialRetryDelayMillis is the delay before the first retry of a failed
	// transaction function.
	InitialRetryDelayMillis int `yaml:"initialRetryDelayMillis"`

	// Logging config
	LogSession bool
	LogRPC     bool
}

// NewDefaultClientConfig returns a new default client configuration.
func NewDefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		MaxIdleConnections:             10,
		MaxTransactionRetryTimeSeconds: 30,
		InitialRetryDelayMillis:        1000,
	}
}

// Validate validates a ClientConfig and returns an error if it's invalid.
func (conf *ClientConfig) Validate() error {
	if len(conf.Servers) == 0 {
		return fmt.Errorf("no servers provided in config")
	}
	for i, s := range conf.Servers {
		if s.Address == "" {
			return fmt.Errorf("invalid address provided for server %d in config", i)
		}
		if s.Port == "" {
			return fmt.Errorf("invalid port provided for server %d in config", i)
		}
	}
	if conf.MaxIdleConnections < 0 {
		return fmt.Errorf("invalid max idle connections provided in config")
	}
	if conf.MaxTransactionRetryTimeSeconds < 0 {
		return fmt.Errorf("invalid max transaction retry time provided in config")
	}
	return nil
}

// LoadFromFile loads the config from the file. It assumes that config already has the defaults.
// In the case of an error, it leaves the config untouched.
func (conf *ClientConfig) LoadFromFile(path string) {
	log.Info(fmt.Sprintf("common::config::LoadFromFile; loading config from file %s", path))
	data, err := os.ReadFile(path)
	if err != nil {
		log.Error(fmt.Sprintf("common::config::LoadFromFile; error reading config from file %s, error %s", path, err))
		return
	}
	fconf := ClientConfig{}
	err = yaml.Unmarshal(data, &fconf)
	if err != nil {
		log.Error(fmt.Sprintf("common::config::LoadFromFile; error unmarshalling config from file %s, error %s", path, err))
		return
	}

	log.WithFields(log.Fields{"config": fconf}).Debug("common::config::LoadFromFile; read contents from the file")

	// populate fields
	if len(fconf.Servers) != 0 {
		conf.Servers = fconf.Servers
	}
	if fconf.Database != "" {
		conf.Database = fconf.Database
	}
	if fconf.MaxIdleConnections != 0 {
		conf.MaxIdleConnections = fconf.MaxIdleConnections
	}
	if fconf.MaxTransactionRetryTimeSeconds != 0 {
		conf.MaxTransactionRetryTimeSeconds = fconf.MaxTransactionRetryTimeSeconds
	}
	if fconf.InitialRetryDelayMillis != 0 {
		conf.InitialRetryDelayMillis = fconf.InitialRetryDelayMillis
	}
}
