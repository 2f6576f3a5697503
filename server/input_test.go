package server

import (
	"encoding/json"
	"strings"
	"testing"

	"chasingyou/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(t *testing.T, typ string, payload any) protocol.Envelope {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return protocol.Envelope{T: typ, P: b}
}

func TestParseJoin(t *testing.T) {
	tests := []struct {
		name    string
		env     protocol.Envelope
		want    string
		wantErr bool
	}{
		{"plain", envelope(t, protocol.MsgJoin, protocol.Join{Name: "alice"}), "alice", false},
		{"trimmed", envelope(t, protocol.MsgJoin, protocol.Join{Name: "  bob \t"}), "bob", false},
		{"blank", envelope(t, protocol.MsgJoin, protocol.Join{Name: "   "}), "", true},
		{"too long", envelope(t, protocol.MsgJoin, protocol.Join{Name: strings.Repeat("x", 21)}), "", true},
		{"control chars", envelope(t, protocol.MsgJoin, protocol.Join{Name: "a\x01b"}), "", true},
		{"wrong type", envelope(t, protocol.MsgMove, protocol.Move{Dir: "up"}), "", true},
		{"bad payload", protocol.Envelope{T: protocol.MsgJoin, P: json.RawMessage(`[1]`)}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseJoin(tt.env)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrJoin)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMove(t *testing.T) {
	in, err := parseMove("id-1", envelope(t, protocol.MsgMove, protocol.Move{Dir: "UP", Seq: 7}))
	require.NoError(t, err)
	assert.Equal(t, Input{PlayerID: "id-1", Command: DirUp, Seq: 7}, in)

	for _, dir := range []string{"down", "left", "right"} {
		in, err := parseMove("id-1", envelope(t, protocol.MsgMove, protocol.Move{Dir: dir}))
		require.NoError(t, err)
		assert.Equal(t, dir, in.Command.String())
	}

	_, err = parseMove("id-1", envelope(t, protocol.MsgMove, protocol.Move{Dir: "north"}))
	assert.ErrorIs(t, err, ErrInvalidIntent)
	_, err = parseMove("id-1", envelope(t, protocol.MsgMove, protocol.Move{Dir: "up", Seq: -1}))
	assert.ErrorIs(t, err, ErrInvalidIntent)
	_, err = parseMove("id-1", protocol.Envelope{T: protocol.MsgMove, P: json.RawMessage(`"up"`)})
	assert.ErrorIs(t, err, ErrInvalidIntent)
}
