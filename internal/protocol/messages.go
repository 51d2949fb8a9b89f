package protocol

// HELLO (agent -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerName      string `json:"player_name"`
	Token           string `json:"token,omitempty"`
}

// WELCOME (server -> agent)
type WelcomeMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	SessionID       string  `json:"session_id"`
	MatchID         string  `json:"match_id,omitempty"`
	PlayerName      string  `json:"player_name"`
	Team            string  `json:"team"`
	Maze            MazeObs `json:"maze"`
}

type MazeObs struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Cells  []int     `json:"cells"`
	Edges  []EdgeObs `json:"edges"`
}

// EdgeObs is an undirected edge listed once, with A < B.
type EdgeObs struct {
	A      int `json:"a"`
	B      int `json:"b"`
	Weight int `json:"weight"`
}

// STATE (server -> agent): asks for a decision or notifies a phase.
type StateMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Phase           string    `json:"phase"`
	Turn            int       `json:"turn"`
	BudgetMs        int64     `json:"budget_ms"`
	State           StateObs  `json:"state"`
	Stats           *StatsObs `json:"stats,omitempty"`
}

type StateObs struct {
	Turn            int                 `json:"turn"`
	PlayerLocations map[string]int      `json:"player_locations"`
	Scores          map[string]float64  `json:"scores"`
	ExactScores     map[string]string   `json:"exact_scores"`
	Muds            map[string]MudObs   `json:"muds"`
	Teams           map[string][]string `json:"teams"`
	Cheese          []int               `json:"cheese"`
}

type MudObs struct {
	Target int `json:"target"`
	Count  int `json:"count"`
}

type StatsObs struct {
	Turns   int                       `json:"turns"`
	Players map[string]PlayerStatsObs `json:"players"`
}

type PlayerStatsObs struct {
	Actions           map[string]int `json:"actions"`
	Score             float64        `json:"score"`
	TurnDurationsMs   []float64      `json:"turn_durations_ms"`
	PreprocessingMs   float64        `json:"preprocessing_ms"`
	PreprocessingDone bool           `json:"preprocessing_done"`
}

// ACT (agent -> server): the answer to a STATE of the same phase and turn.
// Action is empty for preprocessing and postprocessing.
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Phase           string `json:"phase"`
	Turn            int    `json:"turn"`
	Action          string `json:"action,omitempty"`
	Error           string `json:"error,omitempty"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Turn            int    `json:"turn"`
}

// FRAME (server -> observer): one rendered state.
type FrameMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	MatchID         string   `json:"match_id,omitempty"`
	Players         []string `json:"players"`
	Maze            *MazeObs `json:"maze,omitempty"`
	State           StateObs `json:"state"`
}

// END (server -> observer)
type EndMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	MatchID         string `json:"match_id,omitempty"`
}
