package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sideFile = `{
	"nivel_1_data_modeler": {
		"FolderPath": "/data/DS1001",
		"ProcessId": "DS1001",
		"Type": 2,
		"FlowName": "flow",
		"TaskName": "task",
		"Archivos": {"a": {"Item1": "in.csv", "Item2": "csv"}}
	},
	"nivel_2_data_next_endpoint": {
		"ResultsFolderPath": "/data/DS1001/out",
		"ProcessTasks": {"t1": {"proceso_id": 11}, "t2": {"proceso_id": 12, "extra": true}},
		"Anything": {"nested": [1, 2, 3]}
	},
	"Priority": 5
}`

func TestEstimateWaitHours(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{-1, 0},
		{0, 0},
		{1, 0},
		{2, 3},
		{3, 3},
		{4, 6},
		{7, 9},
		{10, 15},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateWaitHours(tt.n), "n=%d", tt.n)
	}
}

func TestParseAdditionalData(t *testing.T) {
	ad, err := ParseAdditionalData([]byte(sideFile))
	require.NoError(t, err)

	assert.Equal(t, "/data/DS1001", ad.Modeler.FolderPath)
	assert.Equal(t, "DS1001", ad.Modeler.ProcessID)
	assert.Equal(t, 2, ad.Modeler.Type)
	assert.Equal(t, "in.csv", ad.Modeler.Archivos["a"].Item1)
	assert.Equal(t, 5, ad.PriorityOrDefault())

	path, err := ad.Next.ResultsFolderPath()
	require.NoError(t, err)
	assert.Equal(t, "/data/DS1001/out", path)

	tasks, err := ad.Next.ProcessTasks()
	require.NoError(t, err)
	assert.Equal(t, map[string]Task{"t1": {VariableID: 11}, "t2": {VariableID: 12}}, tasks)
}

func TestParseAdditionalDataRequiresLevelOneFields(t *testing.T) {
	_, err := ParseAdditionalData([]byte(`{"nivel_1_data_modeler":{"ProcessId":"P"}}`))
	assert.ErrorIs(t, err, ErrMissingFolderPath)

	_, err = ParseAdditionalData([]byte(`{"nivel_1_data_modeler":{"FolderPath":"/x"}}`))
	assert.ErrorIs(t, err, ErrMissingProcessID)

	_, err = ParseAdditionalData([]byte(`not json`))
	assert.Error(t, err)
}

func TestNextStageKeepsUnknownFields(t *testing.T) {
	ad, err := ParseAdditionalData([]byte(sideFile))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(ad.Next.Raw(), &got))
	assert.Contains(t, got, "Anything")

	tasks := got["ProcessTasks"].(map[string]any)
	assert.Equal(t, true, tasks["t2"].(map[string]any)["extra"])
}

func TestNextStageMissing(t *testing.T) {
	ad, err := ParseAdditionalData([]byte(`{"nivel_1_data_modeler":{"FolderPath":"/x","ProcessId":"P"}}`))
	require.NoError(t, err)

	assert.True(t, ad.Next.Empty())
	assert.Equal(t, 0, ad.PriorityOrDefault())

	_, err = ad.Next.ProcessTasks()
	assert.ErrorIs(t, err, ErrNoNextStage)

	stage := NewNextStage([]byte(`{"ResultsFolderPath":"/out"}`))
	_, err = stage.ProcessTasks()
	assert.Error(t, err)
}

func TestTechnologyRequestAddsActionURL(t *testing.T) {
	ad, err := ParseAdditionalData([]byte(sideFile))
	require.NoError(t, err)

	body, err := json.Marshal(TechnologyRequest{ModelerData: ad.Modeler, APIActionDs: "http://ds/api/action"})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "DS1001", got["ProcessId"])
	assert.Equal(t, "/data/DS1001", got["FolderPath"])
	assert.Equal(t, "http://ds/api/action", got["ApiActionDs"])
	assert.NotContains(t, got, "nivel_2_data_next_endpoint")
}

func TestHasZeroByteNotice(t *testing.T) {
	assert.True(t, HasZeroByteNotice("Se detectó un ARCHIVO DE 0 KB en resultados"))
	assert.True(t, HasZeroByteNotice("archivo de 0 kb"))
	assert.False(t, HasZeroByteNotice("archivo de 10 KB"))
	assert.False(t, HasZeroByteNotice(""))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "registered", StatusRegistered.String())
	assert.Equal(t, "sent_onward", StatusSentOnward.String())
	assert.Equal(t, "status_99", Status(99).String())
}

func TestRollbackTargetStatus(t *testing.T) {
	in := RollbackInput{OriginalStatus: StatusRegistered, ErrorStatus: StatusError}
	assert.Equal(t, StatusError, in.TargetStatus())

	in.ErrorStatus = 0
	assert.Equal(t, StatusRegistered, in.TargetStatus())
}

func TestReferenceBasePath(t *testing.T) {
	assert.Equal(t, `\data\DS1001\pathA`, ReferenceBasePath(`\data\DS1001\pathA\out`))
	assert.Equal(t, `\data\DS1001\pathA`, ReferenceBasePath(`\data\DS1001\pathA\out\\`))
	assert.Equal(t, `C:\runs`, ReferenceBasePath(`C:\runs\r1`))
	assert.Equal(t, "", ReferenceBasePath("noseparator"))
	assert.Equal(t, "", ReferenceBasePath(""))
}
