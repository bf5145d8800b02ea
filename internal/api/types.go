package api

import (
	"github.com/samcharles93/charnet/internal/session"
)

const (
	// MaxTextBytes bounds the corpus accepted when creating a session.
	MaxTextBytes = 4 << 20
	// MaxBodyBytes bounds any request body: the largest corpus plus room
	// for the rest of the JSON document.
	MaxBodyBytes = MaxTextBytes + 64<<10
	// MaxTrainSteps bounds the steps a single train request may run.
	MaxTrainSteps = 10000
	// MaxGenerateLength bounds max_length on generate requests.
	MaxGenerateLength = 2000

	defaultGenerateLength = 20
)

// CreateSessionRequest creates a session. Unset numeric fields take the
// server defaults.
type CreateSessionRequest struct {
	Arch         string   `json:"arch"`
	HiddenSize   *int     `json:"hidden_size,omitempty"`
	Text         string   `json:"text"`
	LearningRate *float64 `json:"learning_rate,omitempty"`
	Dropout      *float64 `json:"dropout,omitempty"`
	Window       *int     `json:"window,omitempty"`
	Seed         *uint64  `json:"seed,omitempty"`
	SampleEvery  *int     `json:"sample_every,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	Lowercase    bool     `json:"lowercase,omitempty"`
}

type TrainRequest struct {
	Steps  int  `json:"steps"`
	Stream bool `json:"stream,omitempty"`
}

type TrainResponse struct {
	Session session.Summary `json:"session"`
	Report  *session.Report `json:"report"`
}

type GenerateRequest struct {
	Seed        string   `json:"seed"`
	MaxLength   int      `json:"max_length"`
	Temperature *float64 `json:"temperature,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

type GenerateResponse struct {
	Text            string   `json:"text"`
	Tokens          []string `json:"tokens"`
	Stopped         bool     `json:"stopped"`
	TokensGenerated int      `json:"tokens_generated"`
	DurationMS      float64  `json:"duration_ms"`
}

type SessionList struct {
	Object string            `json:"object"`
	Data   []session.Summary `json:"data"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
}
