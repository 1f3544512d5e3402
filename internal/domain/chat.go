package domain

// ChatMessage is the provider-agnostic chat message shape used by the LLM
// integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Button is one inline keyboard button. Action is echoed back as the
// callback payload when the user taps it.
type Button struct {
	Text   string
	Action string
}

// Button actions understood by the conversation service.
const (
	ActionConfirm = "confirm"
	ActionEdit    = "edit"
	ActionAgree   = "agree"
	ActionDecline = "decline"
	ActionBack    = "back"
	ActionRestart = "restart"
)

type InputKind int

const (
	InputUnknown InputKind = iota
	InputCommand
	InputText
	InputPhoto
	InputButton
)

func (k InputKind) String() string {
	switch k {
	case InputCommand:
		return "command"
	case InputText:
		return "text"
	case InputPhoto:
		return "photo"
	case InputButton:
		return "button"
	default:
		return "unknown"
	}
}

// Input is one inbound chat event, already stripped of transport details.
type Input struct {
	SessionID  string
	ChatID     int64
	Kind       InputKind
	Command    string // without the leading slash
	Text       string
	PhotoID    string // file id of the largest photo size
	Action     string // button payload
	CallbackID string
	UpdateID   int // transport delivery id, zero when unknown
}
