package commands

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/msgr-protocol/msgr-go/pkg/log"
	"github.com/msgr-protocol/msgr-go/pkg/wire"
)

func TestFormatMessageEvent(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)
	event := log.Event{
		Timestamp:    ts,
		ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Message: &log.MessageEvent{
			Seq:      7,
			Tid:      42,
			Type:     3,
			FrontLen: 16,
			DataLen:  4096,
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "2026-01-28T10:15:32.123456Z") {
		t.Errorf("expected microsecond timestamp, got: %s", output)
	}
	if !strings.Contains(output, "[conn:abc12345]") {
		t.Errorf("expected shortened connection ID, got: %s", output)
	}
	if !strings.Contains(output, "OUT") {
		t.Errorf("expected OUT direction, got: %s", output)
	}
	if !strings.Contains(output, "MSG type=3") {
		t.Errorf("expected message type label, got: %s", output)
	}
	if !strings.Contains(output, "Seq: 7") {
		t.Errorf("expected sequence, got: %s", output)
	}
	if !strings.Contains(output, "front=16 middle=0 data=4096") {
		t.Errorf("expected segment sizes, got: %s", output)
	}
}

func TestFormatControlEvent(t *testing.T) {
	event := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: "deadbeef",
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryControl,
		ControlMsg: &log.ControlMsgEvent{
			Tag:   uint8(wire.TagAck),
			Value: 12,
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "ACK") {
		t.Errorf("expected ACK label, got: %s", output)
	}
	if !strings.Contains(output, "CTRL") {
		t.Errorf("expected CTRL layer label for control events, got: %s", output)
	}
	if !strings.Contains(output, "Seq: 12") {
		t.Errorf("expected acked sequence, got: %s", output)
	}
}

func TestFormatStateChangeEvent(t *testing.T) {
	event := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: "deadbeef",
		Direction:    log.DirectionOut,
		Layer:        log.LayerConnection,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState: "CONNECTING",
			NewState: "OPEN",
			Reason:   "handshake complete",
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "CONNECTING -> OPEN") {
		t.Errorf("expected state transition, got: %s", output)
	}
	if !strings.Contains(output, "Reason: handshake complete") {
		t.Errorf("expected reason, got: %s", output)
	}
}

func TestFormatHandshakeEvent(t *testing.T) {
	event := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: "deadbeef",
		Direction:    log.DirectionOut,
		Layer:        log.LayerConnection,
		Category:     log.CategoryHandshake,
		Handshake: &log.HandshakeEvent{
			Tag:        uint8(wire.TagConnect),
			GlobalSeq:  3,
			ConnectSeq: 1,
			Attempt:    2,
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "CONNECT") {
		t.Errorf("expected CONNECT label, got: %s", output)
	}
	if !strings.Contains(output, "GlobalSeq: 3  ConnectSeq: 1") {
		t.Errorf("expected sequence numbers, got: %s", output)
	}
	if !strings.Contains(output, "Attempt: 2") {
		t.Errorf("expected attempt count, got: %s", output)
	}
}

func TestFormatErrorEvent(t *testing.T) {
	event := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: "deadbeef",
		Direction:    log.DirectionIn,
		Layer:        log.LayerConnection,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: "connection reset by peer",
			Context: "read",
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "Error") {
		t.Errorf("expected Error label, got: %s", output)
	}
	if !strings.Contains(output, "connection reset by peer") {
		t.Errorf("expected error message, got: %s", output)
	}
	if !strings.Contains(output, "Context: read") {
		t.Errorf("expected error context, got: %s", output)
	}
}

func TestRunViewWithFilter(t *testing.T) {
	path := writeTestLog(t)

	wireLayer := log.LayerWire
	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{Layer: &wireLayer}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "MSG type=1") {
		t.Errorf("expected wire-layer message in output, got: %s", output)
	}
	if strings.Contains(output, "State") {
		t.Errorf("state events should be filtered out, got: %s", output)
	}
}

func TestRunViewMissingFile(t *testing.T) {
	var buf bytes.Buffer
	err := RunView(filepath.Join(t.TempDir(), "nope.mlog"), ViewFilter{}, &buf)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseLayerFlag(t *testing.T) {
	tests := []struct {
		input   string
		want    log.Layer
		wantErr bool
	}{
		{"transport", log.LayerTransport, false},
		{"WIRE", log.LayerWire, false},
		{"Connection", log.LayerConnection, false},
		{"bogus", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseLayerFlag(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseLayerFlag(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLayerFlag(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLayerFlag(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseDirectionFlag(t *testing.T) {
	if d, err := ParseDirectionFlag("in"); err != nil || d != log.DirectionIn {
		t.Errorf("ParseDirectionFlag(in) = %v, %v", d, err)
	}
	if d, err := ParseDirectionFlag("OUT"); err != nil || d != log.DirectionOut {
		t.Errorf("ParseDirectionFlag(OUT) = %v, %v", d, err)
	}
	if _, err := ParseDirectionFlag("sideways"); err == nil {
		t.Error("expected error for invalid direction")
	}
}

func TestParseCategoryFlag(t *testing.T) {
	if c, err := ParseCategoryFlag("handshake"); err != nil || c != log.CategoryHandshake {
		t.Errorf("ParseCategoryFlag(handshake) = %v, %v", c, err)
	}
	if _, err := ParseCategoryFlag("bogus"); err == nil {
		t.Error("expected error for invalid category")
	}
}

// writeTestLog creates a small log file with a fixed set of events and
// returns its path.
func writeTestLog(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.mlog")
	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	base := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{
			Timestamp:    base,
			ConnectionID: "conn-aaaa-1111",
			Direction:    log.DirectionOut,
			Layer:        log.LayerConnection,
			Category:     log.CategoryState,
			LocalRole:    log.RoleClient,
			RemoteAddr:   "10.0.0.1:6800",
			StateChange:  &log.StateChangeEvent{NewState: "CONNECTING"},
		},
		{
			Timestamp:    base.Add(5 * time.Millisecond),
			ConnectionID: "conn-aaaa-1111",
			Direction:    log.DirectionOut,
			Layer:        log.LayerConnection,
			Category:     log.CategoryHandshake,
			LocalRole:    log.RoleClient,
			RemoteAddr:   "10.0.0.1:6800",
			Handshake:    &log.HandshakeEvent{Tag: uint8(wire.TagConnect), GlobalSeq: 1, Attempt: 1},
		},
		{
			Timestamp:    base.Add(10 * time.Millisecond),
			ConnectionID: "conn-aaaa-1111",
			Direction:    log.DirectionOut,
			Layer:        log.LayerConnection,
			Category:     log.CategoryState,
			LocalRole:    log.RoleClient,
			RemoteAddr:   "10.0.0.1:6800",
			StateChange:  &log.StateChangeEvent{OldState: "CONNECTING", NewState: "OPEN"},
		},
		{
			Timestamp:    base.Add(20 * time.Millisecond),
			ConnectionID: "conn-aaaa-1111",
			Direction:    log.DirectionOut,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			LocalRole:    log.RoleClient,
			RemoteAddr:   "10.0.0.1:6800",
			Entity:       "osd.3",
			Message:      &log.MessageEvent{Seq: 1, Tid: 100, Type: 1, DataLen: 512},
		},
		{
			Timestamp:    base.Add(30 * time.Millisecond),
			ConnectionID: "conn-aaaa-1111",
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryControl,
			LocalRole:    log.RoleClient,
			RemoteAddr:   "10.0.0.1:6800",
			Entity:       "osd.3",
			ControlMsg:   &log.ControlMsgEvent{Tag: uint8(wire.TagAck), Value: 1},
		},
		{
			Timestamp:    base.Add(40 * time.Millisecond),
			ConnectionID: "conn-bbbb-2222",
			Direction:    log.DirectionIn,
			Layer:        log.LayerWire,
			Category:     log.CategoryMessage,
			LocalRole:    log.RoleServer,
			RemoteAddr:   "10.0.0.2:51234",
			Message:      &log.MessageEvent{Seq: 1, Tid: 7, Type: 2, FrontLen: 32},
		},
		{
			Timestamp:    base.Add(50 * time.Millisecond),
			ConnectionID: "conn-bbbb-2222",
			Direction:    log.DirectionIn,
			Layer:        log.LayerConnection,
			Category:     log.CategoryError,
			LocalRole:    log.RoleServer,
			RemoteAddr:   "10.0.0.2:51234",
			Error:        &log.ErrorEventData{Layer: log.LayerTransport, Message: "EOF", Context: "read"},
		},
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}

	return path
}
