package entity

import "time"

type Label string

const (
	LabelDelete  Label = "del"
	LabelSpace   Label = "space"
	LabelNothing Label = "nothing"
)

// DefaultLabels follows the output-index order of the bundled ASL alphabet model.
var DefaultLabels = []Label{
	"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M",
	"N", "O", "P", "Q", "R", "S", "T", "U", "V", "W", "X", "Y", "Z",
	LabelDelete, LabelNothing, LabelSpace,
}

func (l Label) String() string {
	return string(l)
}

func (l Label) IsControl() bool {
	return l == LabelDelete || l == LabelSpace || l == LabelNothing
}

type Sample struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

type InferenceResult struct {
	FrameID            string  `json:"frame_id"`
	SmoothedLabel      Label   `json:"letter"`
	SmoothedConfidence float64 `json:"confidence"`
	RawLabel           Label   `json:"raw_letter"`
	RawConfidence      float64 `json:"raw_confidence"`
	HistorySize        int     `json:"buffer_size"`
	HandDetected       bool    `json:"hand_detected"`
	Message            string  `json:"message,omitempty"`
}

type LetterEvent struct {
	Letter     Label     `json:"letter"`
	Confidence float64   `json:"confidence"`
	Transcript string    `json:"transcript"`
	At         time.Time `json:"at"`
}
