// Package packet defines the JSON frames exchanged with front-end clients
// over the websocket transport.
//
// Inbound frames are discriminated by their "type" field and parsed with
// ParseJsonPacket. Outbound frames are the hello and error frames defined
// here plus model updates from the feupdate package.
package packet

import (
	"encoding/base64"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/feupdate"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/screenmem"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/errs"
)

const (
	WatchScreenPacketStr       = "watchscreen"
	FeInputPacketStr           = "feinput"
	RemoteInputPacketStr       = "remoteinput"
	CmdInputTextPacketStr      = "cmdinputtext"
	UserInputResponsePacketStr = feupdate.UserInputResponseStr
	HelloPacketStr             = "hello"
	ErrorPacketStr             = "error"
)

type PacketType interface {
	GetType() string
}

type typeOnly struct {
	Type string `json:"type"`
}

// RemotePtr addresses a remote. An OwnerId marks an owner-scoped alias,
// which cannot receive direct input.
type RemotePtr struct {
	OwnerId  string `json:"ownerid,omitempty"`
	RemoteId string `json:"remoteid"`
	Name     string `json:"name,omitempty"`
}

// CommandKey is "<sessionid>/<cmdid>".
type CommandKey string

func (ck CommandKey) Split() (string, string) {
	sessionId, cmdId, _ := strings.Cut(string(ck), "/")
	return sessionId, cmdId
}

// Validate checks the key's shape; typeStr names the frame in the error.
func (ck CommandKey) Validate(typeStr string) error {
	if ck == "" {
		return nil
	}
	sessionId, cmdId := ck.Split()
	if sessionId == "" || cmdId == "" {
		return errs.Validation("ck", "%s has invalid command key %q", typeStr, string(ck))
	}
	return nil
}

type WatchScreenPacket struct {
	Type      string `json:"type"`
	SessionId string `json:"sessionid"`
	ScreenId  string `json:"screenid"`
	Connect   bool   `json:"connect"`
	AuthKey   string `json:"authkey"`
}

func (*WatchScreenPacket) GetType() string { return WatchScreenPacketStr }

// IsUnwatch reports whether the frame clears the current subscription.
func (pk *WatchScreenPacket) IsUnwatch() bool {
	return pk.SessionId == "" || pk.ScreenId == ""
}

type FeInputPacket struct {
	Type        string            `json:"type"`
	CK          CommandKey        `json:"ck,omitempty"`
	Remote      RemotePtr         `json:"remote"`
	InputData64 string            `json:"inputdata64,omitempty"`
	SigName     string            `json:"signame,omitempty"`
	WinSize     *feupdate.WinSize `json:"winsize,omitempty"`
}

func (*FeInputPacket) GetType() string { return FeInputPacketStr }

// DecodeInput returns the decoded input bytes.
func (pk *FeInputPacket) DecodeInput() ([]byte, error) {
	return decodeInput64(pk.InputData64)
}

type RemoteInputPacket struct {
	Type        string `json:"type"`
	RemoteId    string `json:"remoteid"`
	InputData64 string `json:"inputdata64"`
}

func (*RemoteInputPacket) GetType() string { return RemoteInputPacketStr }

func (pk *RemoteInputPacket) DecodeInput() ([]byte, error) {
	return decodeInput64(pk.InputData64)
}

type CmdInputTextPacket struct {
	Type     string               `json:"type"`
	SeqNum   int                  `json:"seqnum"`
	ScreenId string               `json:"screenid"`
	Text     screenmem.StrWithPos `json:"text"`
}

func (*CmdInputTextPacket) GetType() string { return CmdInputTextPacketStr }

// UserInputResponsePacket answers a userinputrequest update.
type UserInputResponsePacket struct {
	Type         string `json:"type"`
	RequestId    string `json:"requestid"`
	Text         string `json:"text,omitempty"`
	Confirm      bool   `json:"confirm,omitempty"`
	ErrorMsg     string `json:"errormsg,omitempty"`
	CheckboxStat bool   `json:"checkboxstat,omitempty"`
}

func (*UserInputResponsePacket) GetType() string        { return UserInputResponsePacketStr }
func (pk *UserInputResponsePacket) GetRequestId() string { return pk.RequestId }
func (pk *UserInputResponsePacket) GetError() string     { return pk.ErrorMsg }

type HelloPacket struct {
	Type     string `json:"type"`
	ClientId string `json:"clientid,omitempty"`
}

func (*HelloPacket) GetType() string { return HelloPacketStr }

func MakeHelloPacket(clientId string) *HelloPacket {
	return &HelloPacket{Type: HelloPacketStr, ClientId: clientId}
}

// ErrorPacket reports a rejected inbound frame. The connection stays open.
type ErrorPacket struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	ReqType string `json:"reqtype,omitempty"`
}

func (*ErrorPacket) GetType() string { return ErrorPacketStr }

func MakeErrorPacket(reqType string, err error) *ErrorPacket {
	return &ErrorPacket{Type: ErrorPacketStr, Message: err.Error(), ReqType: reqType}
}

func decodeInput64(input64 string) ([]byte, error) {
	if input64 == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(input64)
	if err != nil {
		return nil, errs.Validation("inputdata64", "invalid base64: %v", err)
	}
	return data, nil
}

// GetPacketType returns the frame's type field without decoding the rest.
func GetPacketType(data []byte) string {
	var t typeOnly
	if err := sonic.Unmarshal(data, &t); err != nil {
		return ""
	}
	return t.Type
}

// ParseJsonPacket decodes one inbound frame. Unknown types and malformed
// JSON are ProtocolErrors.
func ParseJsonPacket(data []byte) (PacketType, error) {
	var t typeOnly
	if err := sonic.Unmarshal(data, &t); err != nil {
		return nil, &errs.ProtocolError{Msg: "malformed frame", Err: err}
	}
	var pk PacketType
	switch t.Type {
	case WatchScreenPacketStr:
		pk = &WatchScreenPacket{}
	case FeInputPacketStr:
		pk = &FeInputPacket{}
	case RemoteInputPacketStr:
		pk = &RemoteInputPacket{}
	case CmdInputTextPacketStr:
		pk = &CmdInputTextPacket{}
	case UserInputResponsePacketStr:
		pk = &UserInputResponsePacket{}
	case "":
		return nil, errs.Protocol("frame has no type")
	default:
		return nil, errs.Protocol("unknown frame type %q", t.Type)
	}
	if err := sonic.Unmarshal(data, pk); err != nil {
		return nil, &errs.ProtocolError{Msg: "malformed " + t.Type + " frame", Err: err}
	}
	return pk, nil
}
