package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	HandshakeOKID    = 0
	HandshakeOKLabel = "HSHK_OK"
)

type Handshake struct {
	ID    *int   `json:"id"`
	Label string `json:"label"`
}

// OK requires id == 0 and the success label together.
func (h *Handshake) OK() bool {
	return h != nil && h.ID != nil && *h.ID == HandshakeOKID && h.Label == HandshakeOKLabel
}

// AckHandshake is what we answer to inbound gateway callbacks.
func AckHandshake() map[string]any {
	return map[string]any{"handshake": map[string]any{"id": HandshakeOKID, "label": HandshakeOKLabel}}
}

type Envelope struct {
	Handshake *Handshake      `json:"handshake"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// DestinationStatus is one entry of data.destinations. The gateway sends
// status either as a plain label or as an {id, label} object.
type DestinationStatus struct {
	ID       string `json:"id,omitempty"`
	Number   string `json:"number"`
	StatusID int    `json:"status_id,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

func (d *DestinationStatus) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID     json.RawMessage `json:"id"`
		To     string          `json:"to"`
		Number string          `json:"number"`
		Phone  string          `json:"phone"`
		Status json.RawMessage `json:"status"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	d.ID = rawScalar(raw.ID)
	d.Error = raw.Error
	d.Number = firstNonEmpty(raw.Number, raw.To, raw.Phone)

	status := bytes.TrimSpace(raw.Status)
	switch {
	case len(status) == 0 || bytes.Equal(status, []byte("null")):
	case status[0] == '"':
		if err := json.Unmarshal(status, &d.Status); err != nil {
			return err
		}
	case status[0] == '{':
		var obj struct {
			ID    int    `json:"id"`
			Label string `json:"label"`
		}
		if err := json.Unmarshal(status, &obj); err != nil {
			return err
		}
		d.StatusID = obj.ID
		d.Status = obj.Label
	default:
		// numeric or other bare status codes are kept verbatim and never count as accepted
		d.Status = string(status)
	}
	return nil
}

// Accepted is true for "sent" and "delivered", compared case-insensitively.
func (d DestinationStatus) Accepted() bool {
	s := strings.ToLower(strings.TrimSpace(d.Status))
	return s == "sent" || s == "delivered"
}

type sendData struct {
	Batch        json.RawMessage `json:"batch"`
	Destinations json.RawMessage `json:"destinations"`
}

type Balance struct {
	Amount   float64 `json:"balance"`
	Currency string  `json:"currency"`
}

// Outcome is the reconciled result of a single gateway call.
type Outcome struct {
	Acknowledged bool                `json:"acknowledged"`
	BatchID      string              `json:"batch_id,omitempty"`
	Destinations []DestinationStatus `json:"destinations,omitempty"`
}

// reconcile checks the handshake and, when inspect is set, every destination status.
func reconcile(op string, body []byte, inspect bool) (*Outcome, json.RawMessage, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, &GatewayRejection{Op: op, Reason: "response is not valid JSON", Body: body}
	}
	if env.Handshake == nil {
		return nil, nil, &GatewayRejection{Op: op, Reason: "handshake missing", Body: body}
	}
	if !env.Handshake.OK() {
		id := "<nil>"
		if env.Handshake.ID != nil {
			id = fmt.Sprint(*env.Handshake.ID)
		}
		return nil, nil, &GatewayRejection{
			Op:     op,
			Reason: fmt.Sprintf("handshake id=%s label=%q", id, env.Handshake.Label),
			Body:   body,
		}
	}

	out := &Outcome{Acknowledged: true}
	if !inspect || len(env.Data) == 0 {
		return out, env.Data, nil
	}

	var data sendData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		// data that is not an object carries no destination report
		return out, env.Data, nil
	}
	out.BatchID = rawScalar(data.Batch)
	if len(data.Destinations) == 0 {
		return out, env.Data, nil
	}

	dests, err := decodeDestinations(data.Destinations)
	if err != nil {
		return nil, nil, &GatewayRejection{Op: op, Reason: "destination report is unreadable", Body: body}
	}
	out.Destinations = dests

	var rejected []DestinationStatus
	for _, d := range dests {
		if !d.Accepted() {
			rejected = append(rejected, d)
		}
	}
	if len(rejected) > 0 {
		return out, env.Data, &GatewayRejection{
			Op:       op,
			Reason:   fmt.Sprintf("first refused %s with status %q", rejected[0].Number, rejected[0].Status),
			Body:     body,
			Rejected: rejected,
		}
	}
	return out, env.Data, nil
}

// decodeDestinations reads each entry on its own so one odd entry cannot hide
// the others. An entry that does not decode is kept as refused.
func decodeDestinations(raw json.RawMessage) ([]DestinationStatus, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	dests := make([]DestinationStatus, 0, len(entries))
	for _, e := range entries {
		var d DestinationStatus
		if err := json.Unmarshal(e, &d); err != nil {
			d = DestinationStatus{Status: "unreadable", Error: err.Error()}
		}
		dests = append(dests, d)
	}
	return dests, nil
}

func rawScalar(b json.RawMessage) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return ""
	}
	var s string
	if b[0] == '"' && json.Unmarshal(b, &s) == nil {
		return s
	}
	return string(b)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
