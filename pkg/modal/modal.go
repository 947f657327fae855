// Package modal provides modal dialogs: form-like containers displayed on top
// of the page and opened or closed through session events.
//
//	m, err := modal.Dialog(root, rc, "settings", modal.Options{Title: "Settings", CanBeClosed: true})
//	if err != nil {
//	    return err
//	}
//	m.Container().AddSubmitButton(ui.SubmitButton{Label: "Save", OnClick: save})
//	m.Open(ctx)
package modal

import (
	"context"

	"github.com/schaumb/streamlit/pkg/errors"
	"github.com/schaumb/streamlit/pkg/session"
	"github.com/schaumb/streamlit/pkg/ui"
)

// MissingSubmitButtonWarning is shown in a modal that has no submit button
// once the script has finished.
const MissingSubmitButtonWarning = "**Missing Submit Button**\n\n" +
	"This modal has no submit button, which means that user interactions will " +
	"never be sent to your app.\n\n" +
	"To create a submit button, add a submit button to the modal's container."

// Options configure a modal.
type Options struct {
	// ClearOnSubmit resets the modal's widgets after submission.
	ClearOnSubmit bool
	// Title is shown in the header. Empty means no header.
	Title string
	// CanBeClosed shows the close control. Use DefaultOptions for the usual
	// closable modal.
	CanBeClosed bool
	// OnClose replaces the default close action of the close control. The
	// callback is responsible for calling Close itself.
	OnClose ui.Callback
	Args    []any
	Kwargs  map[string]any
}

// DefaultOptions returns options for a closable modal with no title.
func DefaultOptions() Options {
	return Options{CanBeClosed: true}
}

// Modal is a modal dialog block.
type Modal struct {
	formID      string
	container   *ui.Container
	closeButton *ui.SubmitButton
}

// FormID builds the form id of the modal with key.
func FormID(key string) string {
	return key
}

// Dialog adds a modal block to dg. It fails when dg is already inside a form
// or modal, when key is set in session state, or when another form of this
// run uses the same key. No block is created on failure.
func Dialog(dg *ui.Container, rc *session.RunContext, key string, opts Options) (*Modal, error) {
	if dg.InForm() {
		return nil, errors.New(errors.ErrorTypeAPI, "Forms cannot be nested in other forms.")
	}
	if key == "" {
		return nil, errors.New(errors.ErrorTypeAPI, "A modal requires a non-empty key.")
	}
	formID := FormID(key)

	if rc != nil {
		if rc.State != nil && rc.State.Has(key) {
			return nil, errors.Newf(errors.ErrorTypeAPI,
				"Values for the modal with key %q cannot be set using session state.", key).
				WithDetail("key", key)
		}
		if !rc.ClaimForm(formID) {
			return nil, errors.Newf(errors.ErrorTypeAPI,
				"There are multiple identical forms with key=%q. To fix this, please make sure that the key argument is unique for each form you create.", key).
				WithDetail("key", key)
		}
	}

	block := dg.Block(ui.Block{Modal: &ui.ModalBlock{
		FormID:        formID,
		ClearOnSubmit: opts.ClearOnSubmit,
		Title:         opts.Title,
		CanBeClosed:   opts.CanBeClosed,
	}})
	block.SetFormID(formID)

	m := &Modal{formID: formID, container: block}
	if err := m.addCloseButton(opts); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Modal) addCloseButton(opts Options) error {
	btn := ui.SubmitButton{
		IsModalCloseButton: true,
		CanModalBeClosed:   opts.CanBeClosed,
		ModalTitle:         opts.Title,
	}
	if opts.CanBeClosed && opts.OnClose != nil {
		btn.OnClick = opts.OnClose
		btn.Args = opts.Args
		btn.Kwargs = opts.Kwargs
	} else {
		btn.OnClick = func(ctx context.Context, _ []any, _ map[string]any) { m.Close(ctx) }
	}

	b, err := m.container.AddSubmitButton(btn)
	if err != nil {
		return err
	}
	m.closeButton = b
	return nil
}

// FormID returns the modal's form id.
func (m *Modal) FormID() string { return m.formID }

// Container returns the modal body, to which widgets are added.
func (m *Modal) Container() *ui.Container { return m.container }

// Block returns the modal block description.
func (m *Modal) Block() *ui.ModalBlock { return m.container.Info().Modal }

// CloseButton returns the close control.
func (m *Modal) CloseButton() *ui.SubmitButton { return m.closeButton }

// Open makes this modal the visible one. Without a run context in ctx it
// does nothing.
func (m *Modal) Open(ctx context.Context) {
	if rc, ok := session.FromContext(ctx); ok {
		rc.Enqueue(session.OpenModal(m.formID))
	}
}

// Close hides any open modal. Without a run context in ctx it does nothing.
func (m *Modal) Close(ctx context.Context) {
	if rc, ok := session.FromContext(ctx); ok {
		rc.Enqueue(session.OpenModal(""))
	}
}

// View is the presentation state of a modal block.
type View struct {
	IsOpen               bool
	ShowHeader           bool
	BlurBackdrop         bool
	MissingSubmitWarning bool
	Title                string
	Body                 string
}

// Render computes how block is displayed given the currently open modal id.
// The missing submit button warning is only shown once the script is no
// longer running, since a button may still arrive.
func Render(block *ui.ModalBlock, openModalID string, hasSubmitButton, running bool) View {
	if block == nil {
		return View{}
	}
	return View{
		IsOpen:               block.FormID != "" && block.FormID == openModalID,
		ShowHeader:           block.Title != "" && block.CanBeClosed,
		BlurBackdrop:         !block.CanBeClosed,
		MissingSubmitWarning: !hasSubmitButton && !running,
		Title:                block.Title,
		Body:                 block.Body,
	}
}

// View renders the modal against the run context's current open modal id.
func (m *Modal) View(rc *session.RunContext) View {
	open, running := "", false
	if rc != nil {
		open, _ = rc.OpenModalID()
		running = rc.Running()
	}
	return Render(m.Block(), open, m.container.HasSubmitButton(), running)
}
