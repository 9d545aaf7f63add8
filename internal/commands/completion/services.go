// Copyright 2025 Tom Barlow
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

package completion

import (
	"context"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/servicehost/internal/commands/shared"
)

const (
	serviceCacheTTL = 2 * time.Second
	daemonTimeout   = 500 * time.Millisecond
)

// serviceInfo is a hosted service token with a short description.
type serviceInfo struct {
	token       string
	description string
}

type serviceCacheEntry struct {
	services  []serviceInfo
	expiresAt time.Time
}

var (
	serviceCache   *serviceCacheEntry
	serviceCacheMu sync.RWMutex
)

// CompleteServiceTokens completes the first positional argument with the
// tokens of hosted services. Results are cached for two seconds.
func CompleteServiceTokens(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		services, err := getServiceCompletions()
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		completions := make([]string, 0, len(services))
		for _, s := range services {
			// Format: "token\tlibrary (state)"
			completions = append(completions, s.token+"\t"+s.description)
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})
}

func getServiceCompletions() ([]serviceInfo, error) {
	serviceCacheMu.RLock()
	if serviceCache != nil && time.Now().Before(serviceCache.expiresAt) {
		cached := serviceCache.services
		serviceCacheMu.RUnlock()
		return cached, nil
	}
	serviceCacheMu.RUnlock()

	services, err := fetchServices()
	if err != nil {
		return nil, err
	}

	serviceCacheMu.Lock()
	serviceCache = &serviceCacheEntry{
		services:  services,
		expiresAt: time.Now().Add(serviceCacheTTL),
	}
	serviceCacheMu.Unlock()
	return services, nil
}

func fetchServices() ([]serviceInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), daemonTimeout)
	defer cancel()

	c, err := shared.NewClient()
	if err != nil {
		return nil, err
	}
	snap, err := c.Services(ctx)
	if err != nil {
		return nil, err
	}

	services := make([]serviceInfo, 0, len(snap.Services))
	for _, s := range snap.Services {
		services = append(services, serviceInfo{
			token:       s.Token,
			description: s.Library + " (" + s.State + ")",
		})
	}
	return services, nil
}

// resetServiceCache clears cached completions.
func resetServiceCache() {
	serviceCacheMu.Lock()
	serviceCache = nil
	serviceCacheMu.Unlock()
}
