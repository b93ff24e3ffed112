// Package lan implements the LAN resolver (spec component E): a resolver
// plugin that gossips presence and queries over UDP multicast to other
// Playdar nodes on the same network segment.
//
// Grounded on the teacher's internal/message and internal/protocol packages
// for the discriminated-envelope idiom, and on
// original_source/resolvers/lan/lan.cpp for the exact message semantics
// (ping/pong/pang/rq/result fields and effects, numcopies redundancy,
// self-ignore rules).
package lan

import (
	"encoding/json"
	"fmt"

	"github.com/playdar/playdar/internal/errors"
	"github.com/playdar/playdar/internal/query"
)

// MaxPayloadBytes is the hard ceiling on a single UDP datagram's JSON
// payload. Larger outgoing messages are refused, never truncated.
const MaxPayloadBytes = 1500

// MsgType is the envelope discriminator every LAN message carries.
type MsgType string

const (
	MsgPing   MsgType = "ping"
	MsgPong   MsgType = "pong"
	MsgPang   MsgType = "pang"
	MsgRQ     MsgType = "rq"
	MsgResult MsgType = "result"
)

// discriminator is the minimal shape used to sniff _msgtype before decoding
// the rest of a payload into its specific type.
type discriminator struct {
	MsgType string `json:"_msgtype"`
}

// PingMsg announces presence and asks for a pong reply. Sent multicast.
type PingMsg struct {
	MsgType  MsgType `json:"_msgtype"`
	FromName string  `json:"from_name"`
	HTTPPort int     `json:"http_port"`
}

// PongMsg answers a ping (or is sent proactively). Sent unicast.
type PongMsg struct {
	MsgType  MsgType `json:"_msgtype"`
	FromName string  `json:"from_name"`
	HTTPPort int     `json:"http_port"`
}

// PangMsg announces clean departure. Sent multicast, best-effort.
type PangMsg struct {
	MsgType  MsgType `json:"_msgtype"`
	FromName string  `json:"from_name"`
}

// RQMsg carries a full query for remote nodes to resolve. Sent multicast.
type RQMsg struct {
	MsgType MsgType `json:"_msgtype"`
	query.Query
}

// ResultMsg carries one result item back to the node that sent an rq. Sent
// unicast. The embedded RI's URL field is stripped before send — the
// receiver rewrites it to point at the sender's own stream endpoint.
type ResultMsg struct {
	MsgType MsgType          `json:"_msgtype"`
	QID     string           `json:"qid"`
	Result  query.ResultItem `json:"result"`
}

// EncodePing, EncodePong, EncodePang, EncodeRQ, and EncodeResult marshal
// their message and enforce MaxPayloadBytes. Encode returns a
// *errors.ValidationError if the encoded form would exceed the limit.

func EncodePing(fromName string, httpPort int) ([]byte, error) {
	return encode(PingMsg{MsgType: MsgPing, FromName: fromName, HTTPPort: httpPort})
}

func EncodePong(fromName string, httpPort int) ([]byte, error) {
	return encode(PongMsg{MsgType: MsgPong, FromName: fromName, HTTPPort: httpPort})
}

func EncodePang(fromName string) ([]byte, error) {
	return encode(PangMsg{MsgType: MsgPang, FromName: fromName})
}

func EncodeRQ(q query.Query) ([]byte, error) {
	return encode(RQMsg{MsgType: MsgRQ, Query: q})
}

// EncodeResult strips ri.URL before encoding, per the wire contract: the
// receiving node computes its own stream URL from the sender's address.
func EncodeResult(qid string, ri query.ResultItem) ([]byte, error) {
	ri.URL = ""
	return encode(ResultMsg{MsgType: MsgResult, QID: qid, Result: ri})
}

func encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &errors.ProtocolError{Operation: "encode", Message: "marshal failed", Err: err}
	}
	if len(data) > MaxPayloadBytes {
		return nil, &errors.ValidationError{
			Input:  fmt.Sprintf("%d-byte payload", len(data)),
			Limit:  MaxPayloadBytes,
			Reason: "exceeds the LAN datagram size ceiling",
		}
	}
	return data, nil
}

// Sniff returns the message's discriminator, or an error if the JSON is
// malformed or the field is missing. Unknown _msgtype values are returned
// without error — callers decide whether to drop them.
func Sniff(data []byte) (MsgType, error) {
	var d discriminator
	if err := json.Unmarshal(data, &d); err != nil {
		return "", &errors.ProtocolError{Operation: "sniff", Message: "malformed JSON envelope", Err: err}
	}
	if d.MsgType == "" {
		return "", &errors.ProtocolError{Operation: "sniff", Message: "missing _msgtype field"}
	}
	return MsgType(d.MsgType), nil
}

func decodePing(data []byte) (PingMsg, error) {
	var m PingMsg
	err := json.Unmarshal(data, &m)
	return m, wrapDecodeErr("ping", err)
}

func decodePong(data []byte) (PongMsg, error) {
	var m PongMsg
	err := json.Unmarshal(data, &m)
	return m, wrapDecodeErr("pong", err)
}

func decodePang(data []byte) (PangMsg, error) {
	var m PangMsg
	err := json.Unmarshal(data, &m)
	return m, wrapDecodeErr("pang", err)
}

func decodeRQ(data []byte) (RQMsg, error) {
	var m RQMsg
	err := json.Unmarshal(data, &m)
	return m, wrapDecodeErr("rq", err)
}

func decodeResult(data []byte) (ResultMsg, error) {
	var m ResultMsg
	err := json.Unmarshal(data, &m)
	return m, wrapDecodeErr("result", err)
}

func wrapDecodeErr(msgType string, err error) error {
	if err == nil {
		return nil
	}
	return &errors.ProtocolError{Operation: "decode " + msgType, Message: "malformed payload", Err: err}
}
