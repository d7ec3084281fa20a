package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picoevo/internal/model"
)

func TestRunCodecRoundTrip(t *testing.T) {
	run := sampleRun("run-1", "2026-01-02T03:04:05Z")

	data, err := EncodeRun(run)
	require.NoError(t, err)
	decoded, err := DecodeRun(data)
	require.NoError(t, err)
	assert.Equal(t, run, decoded)
}

func TestProgramCodecRoundTrip(t *testing.T) {
	program := sampleProgram("run-1")

	data, err := EncodeProgram(program)
	require.NoError(t, err)
	decoded, err := DecodeProgram(data)
	require.NoError(t, err)
	assert.Equal(t, program, decoded)
}

func TestLineageCodecRoundTrip(t *testing.T) {
	lineage := sampleLineage()

	data, err := EncodeLineage(lineage)
	require.NoError(t, err)
	decoded, err := DecodeLineage(data)
	require.NoError(t, err)
	assert.Equal(t, lineage, decoded)
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	run := sampleRun("run-1", "2026-01-02T03:04:05Z")
	run.SchemaVersion = CurrentSchemaVersion + 1
	data, err := EncodeRun(run)
	require.NoError(t, err)
	_, err = DecodeRun(data)
	require.ErrorIs(t, err, ErrVersionMismatch)

	program := sampleProgram("run-1")
	program.CodecVersion = 0
	data, err = EncodeProgram(program)
	require.NoError(t, err)
	_, err = DecodeProgram(data)
	require.ErrorIs(t, err, ErrVersionMismatch)

	lineage := sampleLineage()
	lineage[1].VersionedRecord = model.VersionedRecord{}
	data, err = EncodeLineage(lineage)
	require.NoError(t, err)
	_, err = DecodeLineage(data)
	require.ErrorIs(t, err, ErrVersionMismatch)
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	_, err := DecodeRun([]byte("{"))
	require.Error(t, err)
	_, err = DecodeFitnessHistory([]byte("not-json"))
	require.Error(t, err)
	_, err = DecodeGenerationDiagnostics([]byte(`{"generation":1}`))
	require.Error(t, err)
}
