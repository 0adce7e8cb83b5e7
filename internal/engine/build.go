package engine

// build.go - Build orchestration: ingest, pivot, enrich, assemble, persist

import (
	"context"
	"fmt"

	"github.com/steplab/stepdb/internal/enrich"
	"github.com/steplab/stepdb/internal/ingest"
	"github.com/steplab/stepdb/internal/pivot"
	"github.com/steplab/stepdb/pkg/core"
)

// Build runs one complete build: ingest the metadata shards, resolve every
// terminal block into a master table, enrich the masters with artifact values,
// assemble the database and persist it through the output writer. Builds are
// all-or-nothing: any error aborts before the writer runs, and the state
// store records the attempt either way.
func (e *Engine) Build(ctx context.Context) (*core.Build, error) {
	e.logger.Info("starting build", "database", e.name)

	build, err := e.store.CreateBuild(e.name)
	if err != nil {
		return nil, fmt.Errorf("failed to create build record: %w", err)
	}

	e.logger.Debug("created build", "build_id", build.ID)

	db, tables, err := e.assemble(ctx)
	if err != nil {
		e.logger.Info("build failed", "build_id", build.ID, "error", err.Error())
		_ = e.store.CompleteBuild(build.ID, core.BuildStatusFailed, err.Error(), 0, 0)
		build, _ = e.store.GetBuild(build.ID)
		return build, err
	}

	// The writer connects only after assembly succeeds; failed builds leave
	// no output file.
	if err := e.ensureSinkConnected(ctx); err != nil {
		_ = e.store.CompleteBuild(build.ID, core.BuildStatusFailed, err.Error(), 0, 0)
		build, _ = e.store.GetBuild(build.ID)
		return build, err
	}

	if err := e.writer.WriteDatabase(ctx, db); err != nil {
		err = fmt.Errorf("failed to write database: %w", err)
		e.logger.Info("build failed", "build_id", build.ID, "error", err.Error())
		_ = e.store.CompleteBuild(build.ID, core.BuildStatusFailed, err.Error(), 0, 0)
		build, _ = e.store.GetBuild(build.ID)
		return build, err
	}

	var rows int64
	for _, t := range tables {
		rows += t.Rows
	}
	if err := e.store.RecordBuildTables(build.ID, tables); err != nil {
		e.logger.Error("failed to record build tables", "build_id", build.ID, "error", err)
	}
	_ = e.store.CompleteBuild(build.ID, core.BuildStatusSuccess, "", int64(len(tables)), rows)

	e.logger.Info("build completed", "build_id", build.ID, "tables", len(tables), "rows", rows)

	build, _ = e.store.GetBuild(build.ID)
	return build, nil
}

// Assemble builds the database in memory without touching the output writer
// or the build history.
func (e *Engine) Assemble(ctx context.Context) (*core.Database, error) {
	db, _, err := e.assemble(ctx)
	return db, err
}

// assemble runs the ingest, pivot and enrich stages and lays out the final
// table set: record tables in first-seen order, then one master table per
// terminal block. Master tables replace same-named entries in place.
func (e *Engine) assemble(ctx context.Context) (*core.Database, []*core.BuildTable, error) {
	res, err := ingest.Load(ingest.Options{
		Dir:     e.metaDir,
		Workers: e.workers,
		Logger:  e.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("build canceled after ingest: %w", err)
	}

	db := core.NewDatabase(e.name)
	for _, store := range res.Tables() {
		db.Set(store.Name(), store.Frame())
	}

	builder := pivot.NewBuilder(res, e.logger)
	enricher := enrich.NewEnricher(e.artifacts, res, e.logger)

	masters := make(map[string]bool)
	for _, block := range res.Blocks().Terminal() {
		mt, err := builder.BuildMasterTable(block)
		if err != nil {
			return nil, nil, err
		}
		if err := enricher.Enrich(mt); err != nil {
			return nil, nil, err
		}
		db.Set(mt.Name(), mt.Table())
		masters[mt.Name()] = true

		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("build canceled during pivot: %w", err)
		}
	}

	tables := make([]*core.BuildTable, 0, db.Len())
	for _, name := range db.Names() {
		frame, _ := db.Table(name)
		kind := core.TableKindRecord
		if masters[name] {
			kind = core.TableKindMaster
		}
		tables = append(tables, &core.BuildTable{
			Name:    name,
			Kind:    kind,
			Rows:    int64(frame.NumRows()),
			Columns: int64(frame.NumCols()),
		})
	}

	return db, tables, nil
}
