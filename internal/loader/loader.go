// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package loader implements the idempotent bulk-load stage: it keeps a
// pubsLoadedFiles tracking table in sync with the files on disk,
// verifies disk/DB consistency before every run, and submits
// hgLoadBed/hgLoadSqlTab-style load jobs for every untracked table
// file through the same cluster.Runner abstraction the aligner stages
// use — the table-load primitives themselves are an opaque external
// collaborator (spec.md §1), so loading is "submit a job, wait for it"
// exactly like aligning is.
package loader

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kortschak/pubs/internal/cluster"
)

// TrackedFile is one row of pubsLoadedFiles: the absolute path, size
// and load time of a table file the loader has already loaded.
type TrackedFile struct {
	FileName   string
	Size       int64
	InsertTime time.Time
}

// InconsistentStateError reports that the on-disk state of a tracked
// file no longer matches the tracking table, per spec.md §7's
// InconsistentState category: the operator must truncate the tracking
// table and reload.
type InconsistentStateError struct {
	Reason string
}

func (e *InconsistentStateError) Error() string { return "loader: " + e.Reason }

// EnsureTrackingTable creates pubsLoadedFiles if it does not already
// exist.
func EnsureTrackingTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS pubsLoadedFiles (
		fileName   TEXT PRIMARY KEY,
		size       INTEGER NOT NULL,
		insertTime DATETIME NOT NULL
	)`)
	return err
}

// ReadTracking returns every row currently in pubsLoadedFiles.
func ReadTracking(db *sql.DB) ([]TrackedFile, error) {
	rows, err := db.Query(`SELECT fileName, size, insertTime FROM pubsLoadedFiles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackedFile
	for rows.Next() {
		var f TrackedFile
		if err := rows.Scan(&f.FileName, &f.Size, &f.InsertTime); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// CheckConsistency verifies that every tracked file exists on disk
// with exactly the recorded size (spec.md §8 property 8, scenario S6).
// statSize is injected so tests can simulate disk state without
// touching the filesystem.
func CheckConsistency(tracked []TrackedFile, statSize func(path string) (int64, error)) error {
	for _, f := range tracked {
		size, err := statSize(f.FileName)
		if err != nil {
			return &InconsistentStateError{Reason: fmt.Sprintf(
				"%s: %v; truncate pubsLoadedFiles and reload", f.FileName, err)}
		}
		if size != f.Size {
			return &InconsistentStateError{Reason: fmt.Sprintf(
				"%s: tracked size %d, on-disk size %d; truncate pubsLoadedFiles and reload", f.FileName, f.Size, size)}
		}
	}
	return nil
}

// OSStatSize is the real statSize implementation for CheckConsistency,
// backed by os.Stat.
func OSStatSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// AppendMode is true once the tracking table holds at least one row,
// per spec.md §4.9 step 3: every load after the first run must append
// rather than replace.
func AppendMode(tracked []TrackedFile) bool { return len(tracked) > 0 }

// TableFileKey is the (table, extension) pair a batch's table
// directory files are grouped by, e.g. {"sequenceAnnot", "tab"} or
// {"markerAnnot", "bed"} — the explicit struct Design Notes §9 asks
// for in place of a string-keyed multi-level map.
type TableFileKey struct {
	Table string
	Ext   string
}

// TableFile is one file discovered under a batch's table directory,
// named "<db>.<table>.<ext>" per spec.md §6.
type TableFile struct {
	DB   string
	Key  TableFileKey
	Path string
}

// EnumerateTableFiles walks dir for files matching "db.table.ext",
// skipping zero-size files and any file already present in tracked
// (keyed by absolute path), per spec.md §4.9 step 5.
func EnumerateTableFiles(dir string, tracked map[string]bool) ([]TableFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []TableFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		parts := strings.SplitN(e.Name(), ".", 3)
		if len(parts) != 3 {
			continue // does not match db.table.ext, per spec.md step 5
		}
		path := filepath.Join(dir, e.Name())
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		if tracked[abs] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		if info.Size() == 0 {
			continue
		}
		out = append(out, TableFile{
			DB:   parts[0],
			Key:  TableFileKey{Table: parts[1], Ext: parts[2]},
			Path: abs,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// LoadJob builds the external loader invocation for one table file:
// hgLoadBed for .bed files, hgLoadSqlTab for .tab files, passing the
// matching .sql schema and honoring append mode (spec.md §4.9 step 6).
func LoadJob(tf TableFile, tablePrefix string, appendMode bool) (cluster.Job, error) {
	var cmd string
	switch tf.Key.Ext {
	case "bed":
		cmd = "hgLoadBed"
	case "tab":
		cmd = "hgLoadSqlTab"
	default:
		return cluster.Job{}, fmt.Errorf("loader: unsupported table file extension %q", tf.Key.Ext)
	}
	sqlSchema := strings.TrimSuffix(tf.Path, "."+tf.Key.Ext) + ".sql"
	tableName := tablePrefix + tf.Key.Table

	argv := []string{cmd}
	if appendMode {
		argv = append(argv, "-oldTable")
	}
	argv = append(argv, "hgFixed", tableName, sqlSchema, tf.Path)
	return cluster.Job{Name: tableName + ":" + tf.DB, Argv: argv}, nil
}

// RunLoads submits one LoadJob per file in files through runner and
// waits for completion. If every job succeeded it returns the files in
// submission order; if any job failed it returns no files and a
// combined error — per
// spec.md §4.9's failure semantics, the caller must not record
// tracking rows for a run that contains any failure.
func RunLoads(runner cluster.Runner, files []TableFile, tablePrefix string, appendMode bool) ([]TableFile, error) {
	jobs := make([]TableFile, 0, len(files))
	for _, f := range files {
		job, err := LoadJob(f, tablePrefix, appendMode)
		if err != nil {
			return nil, err
		}
		runner.Submit(job)
		jobs = append(jobs, f)
	}
	results := runner.Finish(context.Background())
	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Err.Error())
		}
	}
	if len(failed) > 0 {
		return nil, fmt.Errorf("loader: %d load job(s) failed: %s", len(failed), strings.Join(failed, "; "))
	}
	return jobs, nil
}

// InsertTracking records one pubsLoadedFiles row per successfully
// loaded file. Callers must only call this after RunLoads has returned
// without error, so partial runs never record a tracking row for a
// file that did not actually load (spec.md §4.9's restart invariant).
func InsertTracking(db *sql.DB, files []TableFile, at time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	for _, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO pubsLoadedFiles (fileName, size, insertTime) VALUES (?, ?, ?)`,
			f.Path, info.Size(), at); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// DropAll removes every table whose name starts with prefix, the
// dropAll pipeline step.
func DropAll(db *sql.DB, prefix string) error {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name LIKE ?`, prefix+"%")
	if err != nil {
		return err
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return err
		}
		names = append(names, n)
	}
	rows.Close()
	for _, n := range names {
		if _, err := db.Exec(fmt.Sprintf(`DROP TABLE %q`, n)); err != nil {
			return err
		}
	}
	return nil
}

// SwitchOver atomically promotes a staged "pubsDev*" table set to
// production, archiving the previous "pubs*" set as "pubsBak*":
// pubs* -> pubsBak*, then pubsDev* -> pubs*.
//
// The first rename must select only the live production set: "pubs%"
// also matches the pubsLoadedFiles tracking table and, without
// exclusion, every "pubsDev*" and "pubsBak*" table too, which would
// archive the tracking table out from under the loader and mangle the
// staging set before it could be promoted. Both renames run through tx
// (not db) so the wrapping transaction actually covers the DDL instead
// of each ALTER TABLE committing on its own connection.
func SwitchOver(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	rename := func(like, oldPrefix, newPrefix string, excludeLike ...string) error {
		query := `SELECT name FROM sqlite_master WHERE type='table' AND name LIKE ?`
		args := []interface{}{like}
		for _, ex := range excludeLike {
			query += ` AND name NOT LIKE ?`
			args = append(args, ex)
		}
		query += ` AND name <> 'pubsLoadedFiles'`

		rows, err := tx.Query(query, args...)
		if err != nil {
			return err
		}
		var names []string
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				rows.Close()
				return err
			}
			names = append(names, n)
		}
		rows.Close()
		for _, n := range names {
			newName := newPrefix + strings.TrimPrefix(n, oldPrefix)
			if _, err := tx.Exec(fmt.Sprintf(`ALTER TABLE %q RENAME TO %q`, n, newName)); err != nil {
				return err
			}
		}
		return nil
	}

	if err := rename("pubs%", "pubs", "pubsBak", "pubsDev%", "pubsBak%"); err != nil {
		tx.Rollback()
		return err
	}
	if err := rename("pubsDev%", "pubsDev", "pubs"); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
