package entity

type ModelStatus uint8

const (
	ModelUnloaded ModelStatus = iota
	ModelLoading
	ModelLoaded
	ModelLoadFailed
)

var ModelStatusMap = map[ModelStatus]string{
	ModelUnloaded:   "unloaded",
	ModelLoading:    "loading",
	ModelLoaded:     "loaded",
	ModelLoadFailed: "load_failed",
}

func (m ModelStatus) String() string {
	return ModelStatusMap[m]
}

func (m ModelStatus) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

type ServerStatus uint8

const (
	ServerStopped ServerStatus = iota
	ServerStarting
	ServerRunning
	ServerStopRequested
)

var ServerStatusMap = map[ServerStatus]string{
	ServerStopped:       "stopped",
	ServerStarting:      "starting",
	ServerRunning:       "running",
	ServerStopRequested: "stop_requested",
}

func (s ServerStatus) String() string {
	return ServerStatusMap[s]
}

func (s ServerStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type ServiceState struct {
	ModelStatus  ModelStatus  `json:"model_status"`
	ServerStatus ServerStatus `json:"server_status"`
}

type Health struct {
	ServiceState
	HistoryLength int    `json:"buffer_size"`
	LastLoadError string `json:"last_load_error,omitempty"`
}
