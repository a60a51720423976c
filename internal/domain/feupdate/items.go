package feupdate

import "strings"

const (
	PtyDataUpdateStr                  = "ptydata"
	RemoteUpdateStr                   = "remote"
	ScreenStatusIndicatorUpdateStr    = "screenstatusindicator"
	ScreenNumRunningCommandsUpdateStr = "screennumrunningcommands"
	CmdInputTextUpdateStr             = "cmdinputtext"
	UserInputRequestUpdateStr         = "userinputrequest"
	ConnectUpdateStr                  = "connect"
	InfoUpdateStr                     = "info"
)

// Status indicator levels, ordered from lowest to highest.
const (
	IndicatorNone    = ""
	IndicatorOutput  = "output"
	IndicatorSuccess = "success"
	IndicatorError   = "error"
)

// PtyDataUpdate carries a chunk of terminal output. PtyPos is the absolute
// offset of the chunk in the remote's output stream.
type PtyDataUpdate struct {
	ScreenId   string `json:"screenid,omitempty"`
	RemoteId   string `json:"remoteid"`
	PtyPos     int64  `json:"ptypos"`
	PtyData64  string `json:"ptydata64"`
	PtyDataLen int64  `json:"ptydatalen"`
}

func (*PtyDataUpdate) UpdateType() string { return PtyDataUpdateStr }

// RemoteRuntimeState is the full runtime snapshot of one remote.
type RemoteRuntimeState struct {
	RemoteType   string            `json:"remotetype"`
	RemoteId     string            `json:"remoteid"`
	RemoteAlias  string            `json:"remotealias,omitempty"`
	ScreenId     string            `json:"screenid,omitempty"`
	Status       string            `json:"status"`
	ErrorStr     string            `json:"errorstr,omitempty"`
	ShellType    string            `json:"shelltype,omitempty"`
	Cwd          string            `json:"cwd,omitempty"`
	StateHash    string            `json:"statehash,omitempty"`
	PtyPos       int64             `json:"ptypos"`
	WinSize      *WinSize          `json:"winsize,omitempty"`
	RemoteVars   map[string]string `json:"remotevars,omitempty"`
	Local        bool              `json:"local,omitempty"`
	InputBlocked bool              `json:"inputblocked,omitempty"`
}

type WinSize struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

func (*RemoteRuntimeState) UpdateType() string { return RemoteUpdateStr }

var secretVarMarkers = []string{"TOKEN", "SECRET", "PASSWORD", "PASSWD", "APIKEY", "API_KEY", "CREDENTIAL"}

// IsSecretVar reports whether a variable name looks like it holds a secret.
func IsSecretVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, marker := range secretVarMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// Clean removes secret-looking variables.
func (state *RemoteRuntimeState) Clean() {
	if state == nil {
		return
	}
	for name := range state.RemoteVars {
		if IsSecretVar(name) {
			delete(state.RemoteVars, name)
		}
	}
}

type ScreenStatusIndicator struct {
	ScreenId string `json:"screenid"`
	Status   string `json:"status"`
}

func (*ScreenStatusIndicator) UpdateType() string { return ScreenStatusIndicatorUpdateStr }

type ScreenNumRunningCommands struct {
	ScreenId string `json:"screenid"`
	Num      int    `json:"num"`
}

func (*ScreenNumRunningCommands) UpdateType() string { return ScreenNumRunningCommandsUpdateStr }

// CmdInputTextUpdate mirrors another client's draft command-line text.
type CmdInputTextUpdate struct {
	ScreenId string `json:"screenid"`
	SeqNum   int    `json:"seqnum"`
	Text     string `json:"text"`
	Pos      int    `json:"pos"`
}

func (*CmdInputTextUpdate) UpdateType() string { return CmdInputTextUpdateStr }

// UserInputRequest asks the client to prompt the user. The client answers
// with a userinputresp frame carrying RequestId.
type UserInputRequest struct {
	RequestId    string `json:"requestid"`
	QueryText    string `json:"querytext"`
	ResponseType string `json:"responsetype"`
	Title        string `json:"title"`
	Markdown     bool   `json:"markdown"`
	TimeoutMs    int    `json:"timeoutms"`
	CheckBoxMsg  string `json:"checkboxmsg,omitempty"`
	PublicText   bool   `json:"publictext"`
	OkLabel      string `json:"oklabel,omitempty"`
	CancelLabel  string `json:"cancellabel,omitempty"`
}

func (*UserInputRequest) UpdateType() string { return UserInputRequestUpdateStr }

// ConnectUpdate is the combined snapshot sent once when a client starts
// watching a screen with connect set.
type ConnectUpdate struct {
	SessionId                string                      `json:"sessionid"`
	ScreenId                 string                      `json:"screenid"`
	Remotes                  []*RemoteRuntimeState       `json:"remotes"`
	ScreenStatusIndicators   []*ScreenStatusIndicator    `json:"screenstatusindicators,omitempty"`
	ScreenNumRunningCommands []*ScreenNumRunningCommands `json:"screennumrunningcommands,omitempty"`
	CmdInputText             *CmdInputTextUpdate         `json:"cmdinputtext,omitempty"`
}

func (*ConnectUpdate) UpdateType() string { return ConnectUpdateStr }

func (update *ConnectUpdate) Clean() {
	for _, remote := range update.Remotes {
		remote.Clean()
	}
}

type InfoMsg struct {
	InfoTitle     string   `json:"infotitle"`
	InfoError     string   `json:"infoerror,omitempty"`
	InfoErrorCode string   `json:"infoerrorcode,omitempty"`
	InfoMsg       string   `json:"infomsg,omitempty"`
	InfoLines     []string `json:"infolines,omitempty"`
	TimeoutMs     int64    `json:"timeoutms,omitempty"`
}

func (*InfoMsg) UpdateType() string { return InfoUpdateStr }

const UserInputResponseStr = "userinputresp"

func (req *UserInputRequest) SetReqId(reqId string)      { req.RequestId = reqId }
func (req *UserInputRequest) SetTimeoutMs(timeoutMs int) { req.TimeoutMs = timeoutMs }

// ExpectedResponse names the response frame type that answers this request.
func (*UserInputRequest) ExpectedResponse() string { return UserInputResponseStr }
