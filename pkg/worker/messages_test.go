package worker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pastecrypt/internal/errors"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Request
	}{
		{
			name: "deriveKey",
			raw:  `{"operation":"deriveKey","requestId":"r1","password":"pw","salt":"c2FsdA==","payloadSize":2048}`,
			want: DeriveKeyRequest{ID: "r1", Password: "pw", Salt: "c2FsdA==", PayloadSize: 2048},
		},
		{
			name: "encrypt",
			raw:  `{"operation":"encrypt","requestId":"r2","plaintext":"hello","key":"a2V5","isPasswordDerived":true,"salt":"c2FsdA=="}`,
			want: EncryptRequest{ID: "r2", Plaintext: "hello", Key: "a2V5", PasswordDerived: true, Salt: "c2FsdA=="},
		},
		{
			name: "decrypt",
			raw:  `{"operation":"decrypt","requestId":"r3","data":"ZW52ZWxvcGU=","key":"hunter2","isPasswordProtected":true}`,
			want: DecryptRequest{ID: "r3", Envelope: "ZW52ZWxvcGU=", Key: "hunter2", PasswordProtected: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRequestUnknownOperation(t *testing.T) {
	_, err := ParseRequest([]byte(`{"operation":"transmute","requestId":"r9"}`))
	require.ErrorIs(t, err, ErrUnknownOperation)
	assert.Contains(t, err.Error(), "transmute")
}

func TestParseRequestMalformedJSON(t *testing.T) {
	_, err := ParseRequest([]byte(`{"operation":`))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidRequest, apperrors.GetCode(err))
}

func TestRequestAccessors(t *testing.T) {
	tests := []struct {
		req Request
		op  Operation
		id  string
	}{
		{DeriveKeyRequest{ID: "a"}, OpDeriveKey, "a"},
		{EncryptRequest{ID: "b"}, OpEncrypt, "b"},
		{DecryptRequest{ID: "c"}, OpDecrypt, "c"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.op, tt.req.Op())
		assert.Equal(t, tt.id, tt.req.RequestID())
	}
}

func TestProgressWireShape(t *testing.T) {
	raw, err := json.Marshal(&Progress{
		Operation: OpEncrypt,
		RequestID: "r1",
		Processed: 40,
		Total:     100,
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"progress":{"operation":"encrypt","requestId":"r1","processed":40,"total":100}}`,
		string(raw),
		"progress events nest under a progress key so consumers can multiplex")
}

func TestResponseWireShape(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		raw, err := json.Marshal(&Response{RequestID: "r1", Success: true, Result: "ZW52"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"requestId":"r1","success":true,"result":"ZW52"}`, string(raw))
	})

	t.Run("failure omits result", func(t *testing.T) {
		raw, err := json.Marshal(&Response{RequestID: "r2", Success: false, Error: "Invalid key or corrupted data"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"requestId":"r2","success":false,"error":"Invalid key or corrupted data"}`, string(raw))
	})
}

func TestFailureResponseUsesUserSafeMessages(t *testing.T) {
	resp := NewFailureResponse("r1", ErrUnknownOperation)
	assert.False(t, resp.Success)
	assert.Equal(t, "r1", resp.RequestID)
	assert.Equal(t, "Unknown operation", resp.Error)

	resp = NewFailureResponse("r2", ErrNotRunning)
	assert.Equal(t, "Worker stopped", resp.Error)

	resp = NewFailureResponse("r3", assert.AnError)
	assert.Equal(t, "An internal error occurred", resp.Error,
		"unclassified errors must not leak internal detail")
}
