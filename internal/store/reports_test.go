package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eca/internal/ir"
)

func reportLogs(t *testing.T) map[string]ReportLog {
	return map[string]ReportLog{
		"sqlite": createTestStore(t),
		"memory": NewMemory(),
	}
}

func TestReportLog_WriteRead(t *testing.T) {
	ctx := context.Background()
	for name, log := range reportLogs(t) {
		t.Run(name, func(t *testing.T) {
			aborted := createTestReport("inv-2", "d-1", "beta", 2)
			aborted.State = ir.StateAborted
			aborted.Reason = "plugin error: boom"
			aborted.Depth = 1

			require.NoError(t, log.WriteReports(ctx, []ir.InvocationReport{
				createTestReport("inv-3", "d-2", "alpha", 3),
				createTestReport("inv-1", "d-1", "alpha", 1),
				aborted,
			}))

			all, err := log.ReadReports(ctx, ReportFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "inv-1", all[0].InvocationID)
			assert.Equal(t, aborted, all[1])
			assert.Equal(t, "inv-3", all[2].InvocationID)

			byModel, err := log.ReadReports(ctx, ReportFilter{ModelID: "alpha"})
			require.NoError(t, err)
			assert.Len(t, byModel, 2)

			byDispatch, err := log.ReadReports(ctx, ReportFilter{DispatchID: "d-1"})
			require.NoError(t, err)
			assert.Len(t, byDispatch, 2)

			byState, err := log.ReadReports(ctx, ReportFilter{State: ir.StateAborted})
			require.NoError(t, err)
			require.Len(t, byState, 1)
			assert.Equal(t, "inv-2", byState[0].InvocationID)

			page, err := log.ReadReports(ctx, ReportFilter{AfterSeq: 1, Limit: 1})
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, "inv-2", page[0].InvocationID)

			none, err := log.ReadReports(ctx, ReportFilter{ModelID: "ghost"})
			require.NoError(t, err)
			assert.NotNil(t, none)
			assert.Empty(t, none)
		})
	}
}

func TestReportLog_Idempotent(t *testing.T) {
	ctx := context.Background()
	for name, log := range reportLogs(t) {
		t.Run(name, func(t *testing.T) {
			r := createTestReport("inv-1", "d-1", "alpha", 1)
			require.NoError(t, log.WriteReports(ctx, []ir.InvocationReport{r}))
			require.NoError(t, log.WriteReports(ctx, []ir.InvocationReport{r}))
			require.NoError(t, log.WriteReports(ctx, nil))

			all, err := log.ReadReports(ctx, ReportFilter{})
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestStore_MaxSeq(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	seq, err := s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	require.NoError(t, s.WriteReports(ctx, []ir.InvocationReport{
		createTestReport("inv-1", "d-1", "alpha", 7),
		createTestReport("inv-2", "d-1", "alpha", 42),
	}))
	seq, err = s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)
}
