package client

import (
	"fmt"

	"github.com/fieldside/sideline/pkg/assist"
	"github.com/fieldside/sideline/pkg/panel"
)

// terminalSurface renders the conversation to stdout and mirrors it to
// the observer panel when one is attached.
type terminalSurface struct {
	panel *panel.Server
}

func newTerminalSurface(p *panel.Server) *terminalSurface {
	return &terminalSurface{panel: p}
}

func (s *terminalSurface) ShowBot(message string) {
	fmt.Printf("assistant> %s\n", message)
	if s.panel != nil {
		s.panel.AddConversation("bot", message)
	}
}

func (s *terminalSurface) ShowUser(message string) {
	fmt.Printf("you> %s\n", message)
	if s.panel != nil {
		s.panel.AddConversation("user", message)
	}
}

func (s *terminalSurface) ShowError(message string) {
	fmt.Printf("error> %s\n", message)
	if s.panel != nil {
		s.panel.AddConversation("error", message)
	}
}

func (s *terminalSurface) Navigate(route string) {
	fmt.Printf("navigate> %s\n", route)
	if s.panel != nil {
		s.panel.AddConversation("bot", "[navigate] "+route)
	}
}

func (s *terminalSurface) Apply(action assist.Action) {
	switch action.Type {
	case assist.ActionNavigate:
		if action.Route != "" {
			s.Navigate(action.Route)
		}
	case assist.ActionInsertText, assist.ActionSendText:
		fmt.Printf("action> %s: %q\n", action.Type, action.Text)
	case assist.ActionOpenUpload, assist.ActionFocusChatInput,
		assist.ActionShowGuide, assist.ActionOpenChat:
		fmt.Printf("action> %s\n", action.Type)
	case assist.ActionHighlight:
		fmt.Printf("action> highlight %s\n", action.Target)
	default:
		// Unknown action kinds are ignored.
	}
}
