// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/kortschak/pubs/internal/loader"
)

// runDropAll removes every table carrying this run's table prefix,
// used to clear a staging load before a from-scratch rebuild.
func runDropAll(pc *pipelineContext) error {
	db, err := sql.Open("sqlite", pc.cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return loader.DropAll(db, pc.tablePrefix)
}

// runSwitchOver atomically renames the staging tables into their
// production names, the final step once a rebuild's tables have all
// loaded successfully.
func runSwitchOver(pc *pipelineContext) error {
	db, err := sql.Open("sqlite", pc.cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return loader.SwitchOver(db)
}
