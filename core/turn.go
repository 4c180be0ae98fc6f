package core

// TurnFlags is the mode/option map attached to a turn request.
type TurnFlags struct {
	// WebSearch enables the web search producer.
	WebSearch bool `json:"web_search"`
	// Scholarly switches web search to scholarly indexes.
	Scholarly bool `json:"scholarly"`
	// CodeExecution enables execution of detected code fences.
	CodeExecution bool `json:"code_execution"`
	// Diagrams enables rasterization of detected diagram blocks.
	Diagrams bool `json:"diagrams"`
	// TellMeMore pulls the prior turn's config snapshot forward.
	TellMeMore bool `json:"tell_me_more"`
	// DetailLevel dials source budgets and prompt allotments (0-4).
	DetailLevel DetailLevel `json:"detail_level"`
	// Persist controls whether the turn is recorded at all.
	Persist bool `json:"persist"`
	// HistoryLookback bounds how many prior message pairs enter the prompt.
	// Zero means the engine default.
	HistoryLookback int `json:"history_lookback"`
}

// TurnRequest is the structured input for one turn.
type TurnRequest struct {
	Text          string    `json:"text"`
	Links         []string  `json:"links,omitempty"`
	SearchQueries []string  `json:"search_queries,omitempty"`
	Flags         TurnFlags `json:"flags"`

	// InsertAfterMessageID, when set, makes this turn a close-to-source
	// insertion: the persister splices the new pair immediately after the
	// named message instead of appending.
	InsertAfterMessageID string `json:"insert_after_message_id,omitempty"`
}

// TurnStatus labels a turn event for calling UIs.
type TurnStatus string

const (
	// StatusPlanning is emitted while the query is being parsed.
	StatusPlanning TurnStatus = "planning"
	// StatusSearching is emitted while web sources are being consulted.
	StatusSearching TurnStatus = "searching"
	// StatusReading is emitted while documents/links are being read.
	StatusReading TurnStatus = "reading"
	// StatusGenerating accompanies streamed answer chunks.
	StatusGenerating TurnStatus = "generating"
	// StatusCancelled marks the terminal event of a cancelled turn.
	StatusCancelled TurnStatus = "cancelled"
	// StatusError marks a fatal generation failure.
	StatusError TurnStatus = "error"
	// StatusDone marks the terminal event of a completed turn.
	StatusDone TurnStatus = "done"
)

// MessageIDs carries the persisted ids of the completed user/model pair.
type MessageIDs struct {
	User  string `json:"user"`
	Model string `json:"model"`
}

// TurnEvent is one element of the streamed turn output. The terminal event
// carries the persisted MessageIDs (nil on all earlier events).
type TurnEvent struct {
	Text       string      `json:"text,omitempty"`
	Status     TurnStatus  `json:"status"`
	MessageIDs *MessageIDs `json:"message_ids,omitempty"`
}

// IsTerminal reports whether this event ends the stream.
func (e TurnEvent) IsTerminal() bool {
	switch e.Status {
	case StatusDone, StatusCancelled, StatusError:
		return true
	}
	return false
}
