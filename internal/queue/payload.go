package queue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// SideFileName is the name of the additional data file written next to the
// uploaded inputs of every enqueued process.
const SideFileName = "additional_data.txt"

var (
	// ErrMissingFolderPath is returned when the Level-1 payload has no FolderPath.
	ErrMissingFolderPath = errors.New("nivel_1_data_modeler.FolderPath is required")
	// ErrMissingProcessID is returned when the Level-1 payload has no ProcessId.
	ErrMissingProcessID = errors.New("nivel_1_data_modeler.ProcessId is required")
	// ErrNoNextStage is returned when a Level-2 field is read from an empty payload.
	ErrNoNextStage = errors.New("nivel_2_data_next_endpoint is empty")
)

// AdditionalData is the content of the side file.
type AdditionalData struct {
	Modeler  ModelerData `json:"nivel_1_data_modeler"`
	Next     NextStage   `json:"nivel_2_data_next_endpoint"`
	Priority *int        `json:"Priority,omitempty"`
}

// ModelerData is the Level-1 payload sent to the technology endpoint.
type ModelerData struct {
	FolderPath string             `json:"FolderPath"`
	ProcessID  string             `json:"ProcessId"`
	Type       int                `json:"Type"`
	FlowName   string             `json:"FlowName"`
	TaskName   string             `json:"TaskName"`
	Archivos   map[string]FileRef `json:"Archivos"`
}

// FileRef is one uploaded input as described by the modeler.
type FileRef struct {
	Item1 string `json:"Item1"`
	Item2 string `json:"Item2"`
}

// TechnologyRequest is the body posted to a technology endpoint.
type TechnologyRequest struct {
	ModelerData
	APIActionDs string `json:"ApiActionDs"`
}

// Task is one entry of the Level-2 ProcessTasks map.
type Task struct {
	VariableID int `json:"proceso_id"`
}

// ParseAdditionalData decodes a side file and checks the fields the
// dispatcher depends on.
func ParseAdditionalData(data []byte) (*AdditionalData, error) {
	var ad AdditionalData
	if err := json.Unmarshal(data, &ad); err != nil {
		return nil, fmt.Errorf("failed to decode additional data: %w", err)
	}
	if err := ad.Validate(); err != nil {
		return nil, err
	}
	return &ad, nil
}

// Validate checks the required Level-1 fields.
func (a *AdditionalData) Validate() error {
	if a.Modeler.FolderPath == "" {
		return ErrMissingFolderPath
	}
	if a.Modeler.ProcessID == "" {
		return ErrMissingProcessID
	}
	return nil
}

// PriorityOrDefault returns the enqueue priority, 0 when absent.
func (a *AdditionalData) PriorityOrDefault() int {
	if a.Priority == nil {
		return 0
	}
	return *a.Priority
}

// NextStage holds the Level-2 payload. Its shape belongs to the next API, so
// the bytes are kept verbatim and only the fields this service needs are
// decoded on demand.
type NextStage struct {
	raw json.RawMessage
}

// NewNextStage wraps raw Level-2 JSON.
func NewNextStage(raw []byte) NextStage {
	return NextStage{raw: append(json.RawMessage(nil), raw...)}
}

// Raw returns the payload exactly as it was stored.
func (n NextStage) Raw() json.RawMessage {
	if n.Empty() {
		return json.RawMessage("null")
	}
	return n.raw
}

// Empty reports whether no Level-2 payload was supplied.
func (n NextStage) Empty() bool {
	trimmed := bytes.TrimSpace(n.raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// MarshalJSON implements json.Marshaler.
func (n NextStage) MarshalJSON() ([]byte, error) {
	return n.Raw(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NextStage) UnmarshalJSON(data []byte) error {
	n.raw = append(n.raw[:0], data...)
	return nil
}

type nextStageFields struct {
	ResultsFolderPath *string          `json:"ResultsFolderPath"`
	ProcessTasks      map[string]*Task `json:"ProcessTasks"`
}

func (n NextStage) fields() (*nextStageFields, error) {
	if n.Empty() {
		return nil, ErrNoNextStage
	}
	var f nextStageFields
	if err := json.Unmarshal(n.raw, &f); err != nil {
		return nil, fmt.Errorf("failed to decode nivel_2_data_next_endpoint: %w", err)
	}
	return &f, nil
}

// ResultsFolderPath returns the folder the next stage reads results from.
func (n NextStage) ResultsFolderPath() (string, error) {
	f, err := n.fields()
	if err != nil {
		return "", err
	}
	if f.ResultsFolderPath == nil || *f.ResultsFolderPath == "" {
		return "", errors.New("nivel_2_data_next_endpoint.ResultsFolderPath is required")
	}
	return *f.ResultsFolderPath, nil
}

// ProcessTasks returns the task map keyed by task id.
func (n NextStage) ProcessTasks() (map[string]Task, error) {
	f, err := n.fields()
	if err != nil {
		return nil, err
	}
	if f.ProcessTasks == nil {
		return nil, errors.New("nivel_2_data_next_endpoint.ProcessTasks is required")
	}
	tasks := make(map[string]Task, len(f.ProcessTasks))
	for id, task := range f.ProcessTasks {
		if task == nil {
			return nil, fmt.Errorf("process task %q has no proceso_id", id)
		}
		tasks[id] = *task
	}
	return tasks, nil
}
