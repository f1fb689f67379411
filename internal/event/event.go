package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Type identifies a realtime event on the wire. The set is closed: the
// initial handshake event plus create/update/delete for each record kind.
type Type string

const (
	TypeConnected Type = "connected"

	TypeExpenseCreated Type = "EXPENSE_CREATED"
	TypeExpenseUpdated Type = "EXPENSE_UPDATED"
	TypeExpenseDeleted Type = "EXPENSE_DELETED"

	TypeIncomeCreated Type = "INCOME_CREATED"
	TypeIncomeUpdated Type = "INCOME_UPDATED"
	TypeIncomeDeleted Type = "INCOME_DELETED"
)

var knownTypes = map[Type]struct{}{
	TypeConnected:      {},
	TypeExpenseCreated: {},
	TypeExpenseUpdated: {},
	TypeExpenseDeleted: {},
	TypeIncomeCreated:  {},
	TypeIncomeUpdated:  {},
	TypeIncomeDeleted:  {},
}

// Valid reports whether t is one of the closed set of event types.
func (t Type) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

// Event is a single realtime notification. Events are ephemeral: built,
// serialized and forgotten per broadcast, never persisted.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// ConnectedData is the payload of the initial handshake event.
type ConnectedData struct {
	UserID string `json:"userId"`
}

// DeletedData is the payload for *_DELETED events.
type DeletedData struct {
	ID string `json:"id"`
}

// KeepAliveFrame is the comment frame written periodically so intermediary
// proxies do not time out an idle stream.
var KeepAliveFrame = []byte(": keepalive\n\n")

// Encode renders the event in the server-to-client wire format:
//
//	event: <TYPE>\ndata: <JSON>\n\n
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "event: %s\n", e.Type)
	for _, line := range strings.Split(string(data), "\n") {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
