// Package protocol defines the wire messages exchanged between sync clients
// and the server, and the newline-delimited JSON framing that carries them.
package protocol

import (
	"encoding/json"
	"fmt"

	"diffsync/pkg/document"
	"diffsync/pkg/textdiff"
)

// MessageKind identifies a message variant. The value doubles as the variant
// key on the wire.
type MessageKind string

const (
	// KindConnect is a new session request.
	KindConnect MessageKind = "Connect"
	// KindConnectOk is the server's acceptance carrying the current document.
	KindConnectOk MessageKind = "ConnectOk"
	// KindClientSync carries one client-to-server sync round.
	KindClientSync MessageKind = "ClientSync"
	// KindServerSync is the server's reply to a ClientSync.
	KindServerSync MessageKind = "ServerSync"
	// KindDisconnect is a graceful teardown notice.
	KindDisconnect MessageKind = "Disconnect"
	// KindPing and KindPong are liveness heartbeats.
	KindPing MessageKind = "Ping"
	// KindPong answers a Ping.
	KindPong MessageKind = "Pong"
	// KindError is a non-fatal error signal.
	KindError MessageKind = "Error"
)

// ConnectPayload asks the server to open a session.
type ConnectPayload struct {
	ClientID string `json:"client_id"`
}

// ConnectOkPayload confirms a session and delivers the authoritative document.
type ConnectOkPayload struct {
	ServerVersion uint64            `json:"server_version"`
	Document      document.Document `json:"document"`
}

// ClientSyncPayload carries a client's outgoing edits. An empty edit list is
// a pull-only poll. ClientVersion is observability only; the server never
// gates merging on it.
type ClientSyncPayload struct {
	ClientID      string            `json:"client_id"`
	Edits         textdiff.EditList `json:"edits"`
	ClientVersion uint64            `json:"client_version"`
}

// ServerSyncPayload carries the server's reply edits, possibly empty.
type ServerSyncPayload struct {
	Edits         textdiff.EditList `json:"edits"`
	ServerVersion uint64            `json:"server_version"`
}

// DisconnectPayload announces a graceful client departure.
type DisconnectPayload struct {
	ClientID string `json:"client_id"`
}

// ErrorPayload signals a non-fatal error; the receiver logs and continues
// unless the error is semantically fatal for it.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Message is the tagged union of everything that crosses the wire. Exactly
// the payload matching Kind is non-nil; Ping and Pong carry none.
type Message struct {
	Kind       MessageKind
	Connect    *ConnectPayload
	ConnectOk  *ConnectOkPayload
	ClientSync *ClientSyncPayload
	ServerSync *ServerSyncPayload
	Disconnect *DisconnectPayload
	Error      *ErrorPayload
}

// NewConnect builds a Connect message.
func NewConnect(clientID string) Message {
	return Message{Kind: KindConnect, Connect: &ConnectPayload{ClientID: clientID}}
}

// NewConnectOk builds a ConnectOk message.
func NewConnectOk(serverVersion uint64, doc document.Document) Message {
	return Message{Kind: KindConnectOk, ConnectOk: &ConnectOkPayload{ServerVersion: serverVersion, Document: doc}}
}

// NewClientSync builds a ClientSync message.
func NewClientSync(clientID string, edits textdiff.EditList, clientVersion uint64) Message {
	return Message{Kind: KindClientSync, ClientSync: &ClientSyncPayload{
		ClientID:      clientID,
		Edits:         edits,
		ClientVersion: clientVersion,
	}}
}

// NewServerSync builds a ServerSync message.
func NewServerSync(edits textdiff.EditList, serverVersion uint64) Message {
	return Message{Kind: KindServerSync, ServerSync: &ServerSyncPayload{
		Edits:         edits,
		ServerVersion: serverVersion,
	}}
}

// NewDisconnect builds a Disconnect message.
func NewDisconnect(clientID string) Message {
	return Message{Kind: KindDisconnect, Disconnect: &DisconnectPayload{ClientID: clientID}}
}

// NewPing builds a Ping message.
func NewPing() Message {
	return Message{Kind: KindPing}
}

// NewPong builds a Pong message.
func NewPong() Message {
	return Message{Kind: KindPong}
}

// NewError builds an Error message.
func NewError(message string) Message {
	return Message{Kind: KindError, Error: &ErrorPayload{Message: message}}
}

// MarshalJSON encodes the message in variant-as-key form. Payload variants
// become single-key objects ({"Connect": {...}}); Ping and Pong encode as
// bare strings.
func (m Message) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case KindConnect:
		if m.Connect == nil {
			return nil, fmt.Errorf("connect message missing payload")
		}
		return json.Marshal(map[MessageKind]*ConnectPayload{KindConnect: m.Connect})
	case KindConnectOk:
		if m.ConnectOk == nil {
			return nil, fmt.Errorf("connect_ok message missing payload")
		}
		return json.Marshal(map[MessageKind]*ConnectOkPayload{KindConnectOk: m.ConnectOk})
	case KindClientSync:
		if m.ClientSync == nil {
			return nil, fmt.Errorf("client_sync message missing payload")
		}
		return json.Marshal(map[MessageKind]*ClientSyncPayload{KindClientSync: m.ClientSync})
	case KindServerSync:
		if m.ServerSync == nil {
			return nil, fmt.Errorf("server_sync message missing payload")
		}
		return json.Marshal(map[MessageKind]*ServerSyncPayload{KindServerSync: m.ServerSync})
	case KindDisconnect:
		if m.Disconnect == nil {
			return nil, fmt.Errorf("disconnect message missing payload")
		}
		return json.Marshal(map[MessageKind]*DisconnectPayload{KindDisconnect: m.Disconnect})
	case KindError:
		if m.Error == nil {
			return nil, fmt.Errorf("error message missing payload")
		}
		return json.Marshal(map[MessageKind]*ErrorPayload{KindError: m.Error})
	case KindPing, KindPong:
		return json.Marshal(string(m.Kind))
	default:
		return nil, fmt.Errorf("unknown message kind %q", m.Kind)
	}
}

// UnmarshalJSON decodes the variant-as-key form produced by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	// Unit variants arrive as bare strings
	var unit string
	if err := json.Unmarshal(data, &unit); err == nil {
		switch MessageKind(unit) {
		case KindPing:
			*m = NewPing()
			return nil
		case KindPong:
			*m = NewPong()
			return nil
		default:
			return fmt.Errorf("unknown message kind %q", unit)
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("message must have exactly one variant, got %d", len(raw))
	}
	for kind, body := range raw {
		switch MessageKind(kind) {
		case KindConnect:
			var p ConnectPayload
			if err := json.Unmarshal(body, &p); err != nil {
				return fmt.Errorf("failed to decode connect payload: %w", err)
			}
			*m = Message{Kind: KindConnect, Connect: &p}
		case KindConnectOk:
			var p ConnectOkPayload
			if err := json.Unmarshal(body, &p); err != nil {
				return fmt.Errorf("failed to decode connect_ok payload: %w", err)
			}
			*m = Message{Kind: KindConnectOk, ConnectOk: &p}
		case KindClientSync:
			var p ClientSyncPayload
			if err := json.Unmarshal(body, &p); err != nil {
				return fmt.Errorf("failed to decode client_sync payload: %w", err)
			}
			*m = Message{Kind: KindClientSync, ClientSync: &p}
		case KindServerSync:
			var p ServerSyncPayload
			if err := json.Unmarshal(body, &p); err != nil {
				return fmt.Errorf("failed to decode server_sync payload: %w", err)
			}
			*m = Message{Kind: KindServerSync, ServerSync: &p}
		case KindDisconnect:
			var p DisconnectPayload
			if err := json.Unmarshal(body, &p); err != nil {
				return fmt.Errorf("failed to decode disconnect payload: %w", err)
			}
			*m = Message{Kind: KindDisconnect, Disconnect: &p}
		case KindError:
			var p ErrorPayload
			if err := json.Unmarshal(body, &p); err != nil {
				return fmt.Errorf("failed to decode error payload: %w", err)
			}
			*m = Message{Kind: KindError, Error: &p}
		default:
			return fmt.Errorf("unknown message kind %q", kind)
		}
	}
	return nil
}

func (m Message) String() string {
	switch m.Kind {
	case KindConnect:
		return fmt.Sprintf("Connect(%s)", m.Connect.ClientID)
	case KindConnectOk:
		return fmt.Sprintf("ConnectOk(server_v%d, doc_v%d)", m.ConnectOk.ServerVersion, m.ConnectOk.Document.Version)
	case KindClientSync:
		return fmt.Sprintf("ClientSync(%s, %d edits, v%d)", m.ClientSync.ClientID, m.ClientSync.Edits.Len(), m.ClientSync.ClientVersion)
	case KindServerSync:
		return fmt.Sprintf("ServerSync(%d edits, server_v%d)", m.ServerSync.Edits.Len(), m.ServerSync.ServerVersion)
	case KindDisconnect:
		return fmt.Sprintf("Disconnect(%s)", m.Disconnect.ClientID)
	case KindError:
		return fmt.Sprintf("Error(%s)", m.Error.Message)
	default:
		return string(m.Kind)
	}
}
