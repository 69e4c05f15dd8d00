// Package ipc handles inter-process communication between the daemon and clients.
package ipc

import (
	"encoding/json"
	"fmt"
)

// CommandType represents the type of command
type CommandType string

const (
	CmdPlay   CommandType = "play"
	CmdPause  CommandType = "pause" // toggles
	CmdStop   CommandType = "stop"
	CmdNext   CommandType = "next"
	CmdPrev   CommandType = "prev"
	CmdSeek   CommandType = "seek"
	CmdVolume CommandType = "volume"
	CmdJump   CommandType = "jump"
	CmdStatus CommandType = "status"

	// Push subscriptions
	CmdSubscribe   CommandType = "subscribe"
	CmdUnsubscribe CommandType = "unsubscribe"
)

// Push message types
const (
	PushSpectrum = "spectrum"
	PushClear    = "clear"
	PushState    = "state"
)

// Subscription topics
const (
	TopicSpectrum = "spectrum"
	TopicState    = "state"
)

// PushMessage represents a server-initiated message (no request needed)
type PushMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Request represents a client request
type Request struct {
	Cmd  CommandType     `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response represents a server response
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// SeekRequest is the data for a seek command
type SeekRequest struct {
	Position int64 `json:"position"` // milliseconds
}

// VolumeRequest is the data for a volume command
type VolumeRequest struct {
	Level float64 `json:"level"` // 0.0 - 1.0
}

// JumpRequest is the data for a jump command
type JumpRequest struct {
	Index int `json:"index"`
}

// SubscribeRequest is the data for subscribe and unsubscribe. An empty
// topic list means every topic.
type SubscribeRequest struct {
	Topics []string `json:"topics,omitempty"`
}

// SubscribeResponse reports the client's id and active topics
type SubscribeResponse struct {
	ID     string   `json:"id"`
	Topics []string `json:"topics"`
}

// SpectrumPush carries one spectral frame
type SpectrumPush struct {
	Seq        uint64    `json:"seq"`
	Magnitudes []float64 `json:"magnitudes"`
	Style      string    `json:"style"`
	ElapsedMs  int64     `json:"elapsedMs"`
	Progress   float64   `json:"progress"`
}

// EncodeRequest encodes a request to JSON
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest decodes a request from JSON
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response to JSON
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse decodes a response from JSON
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data interface{}) (*Response, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Response{
		Success: true,
		Data:    rawData,
	}, nil
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}

// NewPushMessage creates a push message for streaming data
func NewPushMessage(msgType string, data interface{}) ([]byte, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	msg := PushMessage{
		Type: msgType,
		Data: rawData,
	}
	return json.Marshal(msg)
}
