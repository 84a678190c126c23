package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"parseltongue/internal/isg"
	"parseltongue/internal/query"
	"parseltongue/internal/temporal"
)

func TestExitCodeForMapsWrapperTypes(t *testing.T) {
	assert.Equal(t, exitInvalidArguments, exitCodeFor(&invalidArgumentsError{err: assertErr("x")}))
	assert.Equal(t, exitStoreError, exitCodeFor(&storeError{err: assertErr("x")}))
	assert.Equal(t, exitInvariantError, exitCodeFor(&invariantError{err: assertErr("x")}))
	assert.Equal(t, exitGeneralError, exitCodeFor(assertErr("anything else")))
}

func TestClassifyEntityErrorMapsKnownTypes(t *testing.T) {
	var invariantErr error = &invariantError{}
	assert.IsType(t, invariantErr, classifyEntityError(&isg.InvariantError{Rule: "I2", Msg: "bad"}))
	assert.IsType(t, invariantErr, classifyEntityError(&temporal.ErrInvalidTransition{Key: "k"}))
	assert.IsType(t, invariantErr, classifyEntityError(&temporal.ErrKeyCollision{Key: "k"}))

	var invalidArgsErr error = &invalidArgumentsError{}
	assert.IsType(t, invalidArgsErr, classifyEntityError(&isg.ErrUnknownEntity{Key: "k"}))
	assert.IsType(t, invalidArgsErr, classifyEntityError(&temporal.ErrEntityNotFound{Key: "k"}))
	assert.IsType(t, invalidArgsErr, classifyEntityError(&query.ErrInvalidParameter{Param: "max_hops"}))

	assert.Nil(t, classifyEntityError(nil))
}

func TestResolveWorkspaceDefaultsToAbsPath(t *testing.T) {
	orig := workspace
	defer func() { workspace = orig }()

	workspace = "."
	ws := resolveWorkspace()
	assert.True(t, filepath.IsAbs(ws))
}

// assertErr is a trivial error for table-driven exit-code tests.
type assertErr string

func (e assertErr) Error() string { return string(e) }

// TestIngestQueryExportEndToEnd exercises the real component stack (no
// mocks): ingest a tiny Go file into a fresh workspace, then query and
// export against the resulting store.
func TestIngestQueryExportEndToEnd(t *testing.T) {
	ws := t.TempDir()
	src := "package sample\n\nfunc Greet() string {\n\treturn \"hi\"\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(ws, "sample.go"), []byte(src), 0644))

	origWorkspace, origLogger := workspace, logger
	workspace, logger = ws, zap.NewNop()
	defer func() { workspace, logger = origWorkspace, origLogger }()

	require.NoError(t, runIngest(&cobra.Command{}, nil))

	ctx := context.Background()
	app, closer, err := newAppContext(ctx)
	require.NoError(t, err)
	defer closer()

	// one Module entity (the package itself) plus one Function entity.
	assert.Equal(t, 2, app.graph.Len())

	doc, err := app.exporter.Export(1, `kind = "Function"`, false, "2026-07-30T00:00:00Z")
	require.NoError(t, err)
	require.Len(t, doc.Entities, 1)
	assert.Equal(t, "Greet", doc.Entities[0].EntityName)
}

