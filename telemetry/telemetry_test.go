package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestStageWithoutRecorderIsNoop(t *testing.T) {
	end := Stage(context.Background(), "fetch")
	end()
}

func TestStageRecordsTimings(t *testing.T) {
	recorder := NewRecorder()
	ctx := WithRecorder(context.Background(), recorder)

	Stage(ctx, "process CSV files")()
	Stage(ctx, "fetch ledger transactions")()

	stages := recorder.Stages()
	assert.Equal(t, 2, len(stages))
	assert.Equal(t, "process CSV files", stages[0].Name)
	assert.Equal(t, "fetch ledger transactions", stages[1].Name)
}

func TestReport(t *testing.T) {
	recorder := NewRecorder()
	ctx := WithRecorder(context.Background(), recorder)
	Stage(ctx, "match transactions")()

	var buf strings.Builder
	recorder.Report(&buf)

	assert.Contains(t, buf.String(), "match transactions:")
	assert.Contains(t, buf.String(), "total:")
}
