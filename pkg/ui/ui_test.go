package ui

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaumb/streamlit/pkg/errors"
)

func TestContainer_Tree(t *testing.T) {
	root := NewRoot()
	assert.NotEmpty(t, root.Info().ID)
	assert.Nil(t, root.Parent())

	a := root.Block(Block{})
	b := root.Block(Block{ID: "sidebar"})
	assert.NotEmpty(t, a.Info().ID)
	assert.Equal(t, "sidebar", b.Info().ID)
	assert.Same(t, root, b.Parent())
	assert.Equal(t, []*Container{a, b}, root.Children())
}

func TestContainer_FormID(t *testing.T) {
	root := NewRoot()
	assert.False(t, root.InForm())

	form := root.Block(Block{})
	form.SetFormID("checkout")
	inner := form.Block(Block{}).Block(Block{})

	assert.Equal(t, "checkout", inner.FormID())
	assert.True(t, inner.InForm())
	assert.False(t, root.InForm())
}

func TestContainer_SubmitButtons(t *testing.T) {
	root := NewRoot()
	_, err := root.AddSubmitButton(SubmitButton{Label: "Go"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeAPI))

	form := root.Block(Block{})
	form.SetFormID("checkout")

	var got []any
	closeBtn, err := form.AddSubmitButton(SubmitButton{IsModalCloseButton: true})
	require.NoError(t, err)
	assert.Equal(t, "checkout", closeBtn.FormID)
	assert.False(t, root.HasSubmitButton())

	_, err = form.Block(Block{}).AddSubmitButton(SubmitButton{
		Label: "Pay",
		Args:  []any{1, "two"},
		OnClick: func(_ context.Context, args []any, _ map[string]any) {
			got = args
		},
	})
	require.NoError(t, err)
	assert.True(t, root.HasSubmitButton())

	pay := form.Children()[0].SubmitButtons()[0]
	pay.Click(context.Background())
	assert.Equal(t, []any{1, "two"}, got)

	closeBtn.Click(context.Background())
}
