// Package ui is an in-memory element tree: containers hold blocks, child
// containers and form submit buttons.
package ui

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/schaumb/streamlit/pkg/errors"
)

// ModalBlock describes a modal dialog block.
type ModalBlock struct {
	FormID          string
	ClearOnSubmit   bool
	Title           string
	CanBeClosed     bool
	Icon            string
	Body            string
	UnsafeAllowHTML bool
}

// Block describes a layout block. Exactly one of the variant fields is set;
// a block with none is a plain vertical container.
type Block struct {
	ID    string
	Modal *ModalBlock
}

// Callback is invoked when a widget is triggered.
type Callback func(ctx context.Context, args []any, kwargs map[string]any)

// SubmitButton is a form submit button.
type SubmitButton struct {
	ID      string
	Label   string
	FormID  string
	OnClick Callback
	Args    []any
	Kwargs  map[string]any

	IsModalCloseButton bool
	CanModalBeClosed   bool
	ModalTitle         string
}

// Click runs the button's callback, if any.
func (b *SubmitButton) Click(ctx context.Context) {
	if b.OnClick != nil {
		b.OnClick(ctx, b.Args, b.Kwargs)
	}
}

// Container is a node of the element tree.
type Container struct {
	mu       sync.RWMutex
	block    Block
	parent   *Container
	formID   string
	children []*Container
	buttons  []*SubmitButton
}

// NewRoot creates the root container of a page.
func NewRoot() *Container {
	return &Container{block: Block{ID: uuid.NewString()}}
}

// Block adds a child container for b and returns it. A missing block id is
// generated.
func (c *Container) Block(b Block) *Container {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	child := &Container{block: b, parent: c}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.children = append(c.children, child)
	return child
}

// Info returns the block this container was created for.
func (c *Container) Info() Block {
	return c.block
}

// Parent returns the parent container, nil for the root.
func (c *Container) Parent() *Container {
	return c.parent
}

// Children returns the child containers in insertion order.
func (c *Container) Children() []*Container {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Container(nil), c.children...)
}

// SetFormID marks the container as the body of the form with id.
func (c *Container) SetFormID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.formID = id
}

// FormID returns the id of the innermost enclosing form, or "".
func (c *Container) FormID() string {
	for n := c; n != nil; n = n.parent {
		n.mu.RLock()
		id := n.formID
		n.mu.RUnlock()
		if id != "" {
			return id
		}
	}
	return ""
}

// InForm reports whether the container is inside a form or modal.
func (c *Container) InForm() bool {
	return c.FormID() != ""
}

// AddSubmitButton adds a submit button for the enclosing form. The button's
// FormID is set from the container.
func (c *Container) AddSubmitButton(b SubmitButton) (*SubmitButton, error) {
	formID := c.FormID()
	if formID == "" {
		return nil, errors.New(errors.ErrorTypeAPI, "Submit buttons must be used inside a form or modal.")
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.FormID = formID
	btn := &b

	c.mu.Lock()
	defer c.mu.Unlock()
	c.buttons = append(c.buttons, btn)
	return btn, nil
}

// SubmitButtons returns the buttons added directly to this container.
func (c *Container) SubmitButtons() []*SubmitButton {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*SubmitButton(nil), c.buttons...)
}

// HasSubmitButton reports whether the subtree holds a submit button other
// than a modal close button.
func (c *Container) HasSubmitButton() bool {
	for _, b := range c.SubmitButtons() {
		if !b.IsModalCloseButton {
			return true
		}
	}
	for _, child := range c.Children() {
		if child.HasSubmitButton() {
			return true
		}
	}
	return false
}
