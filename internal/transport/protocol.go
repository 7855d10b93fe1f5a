package transport

import "encoding/json"

// Request identifiers the core recognizes on the duplex channel, per spec §4.1.
// Any value not in this set is logged and ignored by the reader loop.
const (
	ReqSend         = 1003 // send
	ReqPush         = 2001 // server push
	ReqKickOffline  = 2002 // kick-offline
	ReqSendNotOSS   = 3001 // send, not-oss variant
)

// OutFrame is the outbound application frame shape, gzip-compressed and
// sent as a binary message, per spec §4.1. Its Data field carries raw
// protobuf bytes as a plain JSON array of integers (not base64) — the
// asymmetry with InFrame is intentional, matching the wire format described
// in spec §6. Go's encoding/json base64-encodes a bare []byte field, so
// MarshalJSON below overrides that for this type alone.
type OutFrame struct {
	ReqIdentifier int32  `json:"reqIdentifier"`
	Token         string `json:"token"`
	SendID        string `json:"sendID"`
	OperationID   string `json:"operationID"`
	MsgIncr       string `json:"msgIncr"`
	Data          []byte `json:"data"`
}

// outFrameWire mirrors OutFrame but carries Data as []int so the default
// encoder emits a number array instead of base64-encoding a []byte.
type outFrameWire struct {
	ReqIdentifier int32  `json:"reqIdentifier"`
	Token         string `json:"token"`
	SendID        string `json:"sendID"`
	OperationID   string `json:"operationID"`
	MsgIncr       string `json:"msgIncr"`
	Data          []int  `json:"data"`
}

// MarshalJSON emits Data as a JSON array of byte values rather than the
// base64 string encoding/json would otherwise produce for a []byte field.
func (f OutFrame) MarshalJSON() ([]byte, error) {
	data := make([]int, len(f.Data))
	for i, b := range f.Data {
		data[i] = int(b)
	}
	return json.Marshal(outFrameWire{
		ReqIdentifier: f.ReqIdentifier,
		Token:         f.Token,
		SendID:        f.SendID,
		OperationID:   f.OperationID,
		MsgIncr:       f.MsgIncr,
		Data:          data,
	})
}

// InFrame is the inbound application-response frame shape. Its Data field
// arrives base64-encoded over the wire (encoding/json decodes []byte from a
// base64 string automatically), holding protobuf-payload bytes.
type InFrame struct {
	ReqIdentifier int32  `json:"reqIdentifier"`
	MsgIncr       string `json:"msgIncr"`
	OperationID   string `json:"operationID"`
	ErrCode       int32  `json:"errCode"`
	ErrMsg        string `json:"errMsg"`
	Data          []byte `json:"data"`
}

// gzipMagic is the two leading bytes of a gzip stream. Inbound binary
// frames are decompressed only when they start with this sequence.
var gzipMagic = [2]byte{0x1f, 0x8b}
