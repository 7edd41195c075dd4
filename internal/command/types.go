package command

import (
	"fmt"
	"strings"
)

// Context selects the grammar applied to a transcript
type Context int

const (
	// Camera accepts the start/stop phrases of the active keyword set
	Camera Context = iota
	// SaveDialog accepts a single trailing "yes" or "no"
	SaveDialog
)

func (c Context) String() string {
	switch c {
	case Camera:
		return "camera"
	case SaveDialog:
		return "save_dialog"
	default:
		return fmt.Sprintf("context(%d)", int(c))
	}
}

// Window returns how many trailing words are compared for this context
func (c Context) Window() int {
	if c == SaveDialog {
		return 1
	}
	return 2
}

// ParseContext maps a wire name back to a Context
func ParseContext(s string) (Context, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "camera", "":
		return Camera, nil
	case "save_dialog", "save-dialog", "savedialog", "save":
		return SaveDialog, nil
	default:
		return Camera, fmt.Errorf("unknown listening context %q", s)
	}
}

// Token is a discrete command produced by the interpreter
type Token string

const (
	Start Token = "start"
	Stop  Token = "stop"
	Yes   Token = "yes"
	No    Token = "no"
)

// Event is delivered once per matched utterance
type Event struct {
	Token      Token
	Context    Context
	Transcript string
	// Generation identifies the listening session that produced the match.
	Generation uint64
}
