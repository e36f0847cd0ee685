package log

import (
	"testing"
	"time"
)

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"direction in", DirectionIn.String(), "IN"},
		{"direction out", DirectionOut.String(), "OUT"},
		{"direction unknown", Direction(9).String(), "UNKNOWN"},
		{"layer transport", LayerTransport.String(), "TRANSPORT"},
		{"layer wire", LayerWire.String(), "WIRE"},
		{"layer connection", LayerConnection.String(), "CONNECTION"},
		{"category message", CategoryMessage.String(), "MESSAGE"},
		{"category control", CategoryControl.String(), "CONTROL"},
		{"category state", CategoryState.String(), "STATE"},
		{"category handshake", CategoryHandshake.String(), "HANDSHAKE"},
		{"category error", CategoryError.String(), "ERROR"},
		{"role client", RoleClient.String(), "CLIENT"},
		{"role server", RoleServer.String(), "SERVER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestEventRoundTrip(t *testing.T) {
	event := Event{
		Timestamp:    time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC),
		ConnectionID: "b4a6d7e0-1111-2222-3333-444455556666",
		Direction:    DirectionOut,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		LocalRole:    RoleClient,
		RemoteAddr:   "10.0.0.2:6800",
		Entity:       "store.1",
		Message: &MessageEvent{
			Seq:      42,
			Tid:      1001,
			Type:     7,
			Priority: 127,
			FrontLen: 64,
			DataLen:  4096,
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !decoded.Timestamp.Equal(event.Timestamp) {
		t.Errorf("timestamp = %v, want %v", decoded.Timestamp, event.Timestamp)
	}
	if decoded.ConnectionID != event.ConnectionID {
		t.Errorf("conn id = %q", decoded.ConnectionID)
	}
	if decoded.Message == nil {
		t.Fatal("message payload missing")
	}
	if decoded.Message.Seq != 42 || decoded.Message.Tid != 1001 || decoded.Message.DataLen != 4096 {
		t.Errorf("message = %+v", decoded.Message)
	}
	if decoded.Frame != nil || decoded.StateChange != nil || decoded.Error != nil {
		t.Error("unset payloads should decode as nil")
	}
}

func TestHandshakeEventRoundTrip(t *testing.T) {
	event := Event{
		Timestamp: time.Now().UTC(),
		Layer:     LayerConnection,
		Category:  CategoryHandshake,
		Handshake: &HandshakeEvent{
			Tag:        0x11,
			GlobalSeq:  5,
			ConnectSeq: 2,
			Attempt:    3,
		},
	}
	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Handshake == nil || decoded.Handshake.ConnectSeq != 2 || decoded.Handshake.Attempt != 3 {
		t.Errorf("handshake = %+v", decoded.Handshake)
	}
}

func TestDecodeEventGarbage(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0x00, 0x01}); err == nil {
		t.Error("expected decode error for garbage input")
	}
}
