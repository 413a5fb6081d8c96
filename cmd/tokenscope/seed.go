// Copyright 2026 The OpenTrusty Authors
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

package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func init() {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Apply a YAML seed of scopes, roles, clients and users",
		Long:  "Applies the seed through the domain services. Entries that already exist are left in place.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Seed.File
			}
			if file == "" {
				return errors.New("no seed file: pass --file or set SEED_FILE")
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.applySeed(cmd.Context(), file)
			if err != nil {
				return err
			}
			cmd.Printf("Created %d scope(s), %d role(s), %d client(s), %d user(s)\n", res.Scopes, res.Roles, res.Clients, res.Users)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the seed file (defaults to SEED_FILE)")
	rootCmd.AddCommand(cmd)
}
