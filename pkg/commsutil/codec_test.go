package commsutil

import (
	"errors"
	"testing"

	"github.com/alonegg/scip-client/pkg/message"
)

func TestEncodePayload_FinalResponse(t *testing.T) {
	code := 42
	tests := []struct {
		name    string
		input   interface{}
		want    string
		wantErr bool
	}{
		{
			name: "success callback",
			input: &message.FinalResponse{
				CorrelationIdentifier: "c1",
				Parameters:            []message.Parameter{{Name: "result", Value: "ok"}},
			},
			want: `{"correlationIdentifier":"c1","parameters":[{"name":"result","value":"ok"}]}`,
		},
		{
			name: "error callback",
			input: &message.FinalResponse{
				CorrelationIdentifier: "c2",
				ErrorCode:             &code,
				ErrorMessage:          "gateway down",
			},
			want: `{"correlationIdentifier":"c2","errorCode":42,"errorMessage":"gateway down"}`,
		},
		{
			name:    "channel is not serializable",
			input:   make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePayload(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("commsutil:codec_test - expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("commsutil:codec_test - unexpected error: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("commsutil:codec_test - EncodePayload() = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantErr   bool
		wantEmpty bool
	}{
		{name: "valid", data: `{"correlationIdentifier":"c1","isoTimestamp":"2025-01-01T00:00:00Z"}`},
		{name: "surrounding whitespace", data: "  {\"correlationIdentifier\":\"c1\"}\n"},
		{name: "invalid json", data: `{invalid}`, wantErr: true},
		{name: "empty", data: "", wantErr: true, wantEmpty: true},
		{name: "whitespace only", data: "  \n", wantErr: true, wantEmpty: true},
		{name: "trailing value", data: `{"correlationIdentifier":"c1"} {"x":1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp message.FinalResponse
			err := DecodePayload([]byte(tt.data), &resp)
			if tt.wantErr {
				if err == nil {
					t.Fatal("commsutil:codec_test - expected error but got nil")
				}
				if tt.wantEmpty && !errors.Is(err, ErrEmptyPayload) {
					t.Errorf("commsutil:codec_test - expected ErrEmptyPayload, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("commsutil:codec_test - unexpected error: %v", err)
			}
			if resp.CorrelationIdentifier != "c1" {
				t.Errorf("commsutil:codec_test - CorrelationIdentifier = %q, want c1", resp.CorrelationIdentifier)
			}
		})
	}
}
