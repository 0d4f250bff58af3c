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

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/borealdb/boreal-go/pkg/boreal"
	"github.com/borealdb/boreal-go/pkg/common"
	"github.com/borealdb/boreal-go/pkg/rpc"
	log "github.com/sirupsen/logrus"
)

var (
	configFilePath     = "/etc/boreal.yaml"
	configFilePathFlag = flag.String("configFilePath", "", "overrides the default config file path")
)

func main() {
	flag.Parse()
	log.SetFormatter(&log.JSONFormatter{})

	log.Info("borealmain::main::main; starting")
	conf := common.NewDefaultClientConfig()
	if *configFilePathFlag != "" {
		configFilePath = *configFilePathFlag
	}
	conf.LoadFromFile(configFilePath)

	provider, err := rpc.NewProvider(conf)
	if err != nil {
		log.Error(fmt.Sprintf("borealmain::main::main; invalid config: %v", err))
		os.Exit(1)
	}
	driver := boreal.NewDriver(provider, boreal.ConfigFromClientConfig(conf))

	ctx := context.Background()
	defer driver.Close(ctx)

	var query string
	for {
		fmt.Printf("boreal> ")
		reader := bufio.NewReader(os.Stdin)
		if query, _ = reader.ReadString('\n'); true {
			query = strings.Trim(query, " \n")
		}

		if query == "exit" {
			break
		}
		if query == "" {
			continue
		}

		execute(ctx, driver, query)
	}
}

// execute runs one query in a fresh session and prints the records.
func execute(ctx context.Context, driver *boreal.Driver, query string) {
	session := driver.NewSession(boreal.SessionConfig{})
	defer session.Close(ctx)

	result := session.Run(ctx, query, nil)
	records, err := result.Collect(ctx)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	for _, record := range records {
		fmt.Println(record.Values...)
	}
	summary, err := result.Consume(ctx)
	if err == nil && summary.Bookmark != "" {
		log.WithFields(log.Fields{"bookmark": summary.Bookmark}).Debug("borealmain::main::execute; query done")
	}
}
