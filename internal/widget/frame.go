package widget

import (
	"embed"
	"html/template"
	"io"
)

//go:embed templates/frame.html
var frameFS embed.FS

var frameTemplate = template.Must(template.ParseFS(frameFS, "templates/frame.html"))

// FrameConfig describes one widget instance.
type FrameConfig struct {
	Domain       string
	PageID       string
	ParentOrigin string
	APIBase      string
	Title        string
}

type frameData struct {
	Title        string
	ParentOrigin string
	CSRFToken    string
	State        State
	Effects      []Effect
}

// InitialState dispatches ready against a fresh state for cfg.
func (d *Dispatcher) InitialState(cfg FrameConfig, csrfToken string) (State, []Effect, error) {
	state := State{
		Domain:       cfg.Domain,
		PageID:       cfg.PageID,
		ParentOrigin: cfg.ParentOrigin,
		APIBase:      cfg.APIBase,
		CSRFToken:    csrfToken,
	}
	return d.Dispatch(state, NewMessage(ActionReady))
}

// RenderFrame writes the iframe document with the initial state embedded.
func (d *Dispatcher) RenderFrame(w io.Writer, cfg FrameConfig) error {
	token := NewCSRFToken()
	state, effects, err := d.InitialState(cfg, token)
	if err != nil {
		return err
	}
	title := cfg.Title
	if title == "" {
		title = "Comments"
	}
	return frameTemplate.Execute(w, frameData{
		Title:        title,
		ParentOrigin: cfg.ParentOrigin,
		CSRFToken:    token,
		State:        state,
		Effects:      effects,
	})
}
