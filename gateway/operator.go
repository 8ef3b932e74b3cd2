// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"strings"

	"github.com/clawpal/clawpal/doctor"
)

// operatorScopes are requested on the operator link: chat needs read
// and write, auto-pairing needs pairing.
var operatorScopes = []string{"operator.read", "operator.write", "operator.pairing"}

// chatPayload is the payload of a "chat" event.
type chatPayload struct {
	SessionKey   string          `json:"sessionKey"`
	State        string          `json:"state"`
	Message      json.RawMessage `json:"message"`
	ErrorMessage string          `json:"errorMessage"`
}

// chatEvent translates a chat event into a doctor event. It returns nil
// for states the controller does not consume.
func chatEvent(payload json.RawMessage) (doctor.Event, error) {
	var chat chatPayload
	if err := json.Unmarshal(payload, &chat); err != nil {
		return nil, err
	}
	switch chat.State {
	case "delta":
		return doctor.ChatDelta{SessionKey: chat.SessionKey, Text: messageText(chat.Message)}, nil
	case "final":
		return doctor.ChatFinal{SessionKey: chat.SessionKey, Text: messageText(chat.Message)}, nil
	case "error", "aborted":
		message := chat.ErrorMessage
		if message == "" {
			message = "agent run " + chat.State
		}
		return doctor.ChatError{SessionKey: chat.SessionKey, Message: message}, nil
	}
	return nil, nil
}

// messageText extracts the text of a chat message, which is a plain
// string, an object with "text", or an object whose "content" is a
// string or a list of typed parts.
func messageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if json.Unmarshal(raw, &text) == nil {
		return text
	}
	var message struct {
		Text    string          `json:"text"`
		Content json.RawMessage `json:"content"`
	}
	if json.Unmarshal(raw, &message) != nil {
		return ""
	}
	if message.Text != "" {
		return message.Text
	}
	if json.Unmarshal(message.Content, &text) == nil {
		return text
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if json.Unmarshal(message.Content, &parts) != nil {
		return ""
	}
	var builder strings.Builder
	for _, part := range parts {
		if part.Type == "text" {
			builder.WriteString(part.Text)
		}
	}
	return builder.String()
}

// pairingRequest is one entry of a device.pair.list response.
type pairingRequest struct {
	RequestID   string `json:"requestId"`
	DeviceID    string `json:"deviceId"`
	DisplayName string `json:"displayName"`
	InstanceID  string `json:"instanceId"`
	Role        string `json:"role"`
}

// matches reports whether the request comes from hostID, which names
// either the device or the host instance it runs on.
func (request pairingRequest) matches(hostID string) bool {
	return hostID != "" && (request.DeviceID == hostID || request.InstanceID == hostID)
}
