package packet

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavetermdev/waveterm-sub010/internal/shared/errs"
)

func TestParseJsonPacket(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, pk PacketType)
	}{
		{
			name:  "watchscreen",
			input: `{"type":"watchscreen","sessionid":"s1","screenid":"sc1","connect":true,"authkey":"k"}`,
			check: func(t *testing.T, pk PacketType) {
				wpk := pk.(*WatchScreenPacket)
				assert.Equal(t, "s1", wpk.SessionId)
				assert.Equal(t, "sc1", wpk.ScreenId)
				assert.True(t, wpk.Connect)
				assert.Equal(t, "k", wpk.AuthKey)
				assert.False(t, wpk.IsUnwatch())
			},
		},
		{
			name:  "feinput",
			input: `{"type":"feinput","remote":{"remoteid":"r1"},"inputdata64":"bHMK","winsize":{"rows":24,"cols":80}}`,
			check: func(t *testing.T, pk PacketType) {
				fpk := pk.(*FeInputPacket)
				assert.Equal(t, "r1", fpk.Remote.RemoteId)
				data, err := fpk.DecodeInput()
				require.NoError(t, err)
				assert.Equal(t, "ls\n", string(data))
				require.NotNil(t, fpk.WinSize)
				assert.Equal(t, 80, fpk.WinSize.Cols)
			},
		},
		{
			name:  "remoteinput",
			input: `{"type":"remoteinput","remoteid":"r1","inputdata64":"eQ=="}`,
			check: func(t *testing.T, pk PacketType) {
				rpk := pk.(*RemoteInputPacket)
				data, err := rpk.DecodeInput()
				require.NoError(t, err)
				assert.Equal(t, "y", string(data))
			},
		},
		{
			name:  "cmdinputtext",
			input: `{"type":"cmdinputtext","seqnum":3,"screenid":"sc1","text":{"str":"ls -l","pos":5}}`,
			check: func(t *testing.T, pk PacketType) {
				cpk := pk.(*CmdInputTextPacket)
				assert.Equal(t, 3, cpk.SeqNum)
				assert.Equal(t, "ls -l", cpk.Text.Str)
				assert.Equal(t, 5, cpk.Text.Pos)
			},
		},
		{
			name:  "userinputresp",
			input: `{"type":"userinputresp","requestid":"rpc_1","text":"yes","errormsg":""}`,
			check: func(t *testing.T, pk PacketType) {
				upk := pk.(*UserInputResponsePacket)
				assert.Equal(t, "rpc_1", upk.GetRequestId())
				assert.Equal(t, "yes", upk.Text)
				assert.Empty(t, upk.GetError())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pk, err := ParseJsonPacket([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.name, pk.GetType())
			tt.check(t, pk)
		})
	}
}

func TestParseJsonPacketErrors(t *testing.T) {
	inputs := []string{
		`not json`,
		`{}`,
		`{"type":"bogus"}`,
		`{"type":"cmdinputtext","seqnum":"three"}`,
	}
	for _, input := range inputs {
		_, err := ParseJsonPacket([]byte(input))
		require.Error(t, err, input)
		assert.True(t, errs.IsProtocol(err), input)
	}
}

func TestDecodeInputInvalid(t *testing.T) {
	pk := &FeInputPacket{InputData64: "!!!"}
	_, err := pk.DecodeInput()
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
}

func TestCommandKeyValidate(t *testing.T) {
	assert.NoError(t, CommandKey("").Validate("feinput"))
	assert.NoError(t, CommandKey("s/c").Validate("feinput"))
	assert.Error(t, CommandKey("nocmd").Validate("feinput"))
	assert.Error(t, CommandKey("/c").Validate("feinput"))
}

func TestOutboundFrames(t *testing.T) {
	data, err := sonic.Marshal(MakeHelloPacket(""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"hello"}`, string(data))

	data, err = sonic.Marshal(MakeErrorPacket("feinput", errs.Protocol("bad")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","message":"protocol error: bad","reqtype":"feinput"}`, string(data))
}

func TestGetPacketType(t *testing.T) {
	assert.Equal(t, "feinput", GetPacketType([]byte(`{"type":"feinput"}`)))
	assert.Empty(t, GetPacketType([]byte(`[`)))
}
