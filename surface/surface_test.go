package surface

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tabs is a minimal Surface that only tracks contexts.
type tabs struct {
	open     []Handle
	current  Handle
	seq      int
	openErr  error
	popup    bool // OpenContext also spawns an untracked popup
	closeLog []Handle
}

func newTabs() *tabs {
	return &tabs{open: []Handle{"primary"}, current: "primary"}
}

func (t *tabs) Navigate(context.Context, string) error { return nil }
func (t *tabs) WaitElement(context.Context, string, time.Duration) (Element, error) {
	return nil, errors.New("not implemented")
}
func (t *tabs) WaitElements(context.Context, string, time.Duration) ([]Element, error) {
	return nil, errors.New("not implemented")
}
func (t *tabs) FindElements(context.Context, string) ([]Element, error) { return nil, nil }
func (t *tabs) CaptureDiagnostic(context.Context, string) error       { return nil }
func (t *tabs) Close() error                                           { return nil }
func (t *tabs) Current() Handle                                        { return t.current }
func (t *tabs) Contexts() []Handle                                     { return append([]Handle(nil), t.open...) }

func (t *tabs) OpenContext(_ context.Context, _ string) (Handle, error) {
	if t.openErr != nil {
		return "", t.openErr
	}
	t.seq++
	h := Handle(fmt.Sprintf("tab-%d", t.seq))
	t.open = append(t.open, h)
	if t.popup {
		t.open = append(t.open, Handle(fmt.Sprintf("popup-%d", t.seq)))
	}
	return h, nil
}

func (t *tabs) SwitchContext(_ context.Context, h Handle) error {
	for _, o := range t.open {
		if o == h {
			t.current = h
			return nil
		}
	}
	return fmt.Errorf("no context %s", h)
}

func (t *tabs) CloseContext(_ context.Context, h Handle) error {
	for i, o := range t.open {
		if o == h {
			t.open = append(t.open[:i], t.open[i+1:]...)
			t.closeLog = append(t.closeLog, h)
			if t.current == h {
				t.current = ""
			}
			return nil
		}
	}
	return fmt.Errorf("no context %s", h)
}

func TestWithDetail_RunsInNewContextAndRestores(t *testing.T) {
	s := newTabs()

	var inside Handle
	err := WithDetail(context.Background(), s, "https://example.test", func(ctx context.Context) error {
		inside = s.Current()
		assert.Len(t, s.Contexts(), 2)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, Handle("tab-1"), inside)
	assert.Equal(t, []Handle{"primary"}, s.Contexts())
	assert.Equal(t, Handle("primary"), s.Current())
}

func TestWithDetail_RestoresOnCallbackError(t *testing.T) {
	s := newTabs()
	boom := errors.New("boom")

	err := WithDetail(context.Background(), s, "https://example.test", func(context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []Handle{"primary"}, s.Contexts())
	assert.Equal(t, Handle("primary"), s.Current())
}

func TestWithDetail_OpenFailure(t *testing.T) {
	s := newTabs()
	s.openErr = errors.New("refused")

	called := false
	err := WithDetail(context.Background(), s, "https://example.test", func(context.Context) error {
		called = true
		return nil
	})

	assert.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, []Handle{"primary"}, s.Contexts())
	assert.Equal(t, Handle("primary"), s.Current())
}

func TestWithDetail_SweepsPopups(t *testing.T) {
	s := newTabs()
	s.popup = true

	err := WithDetail(context.Background(), s, "https://example.test", func(context.Context) error {
		return nil
	})

	require.NoError(t, err)
	assert.ElementsMatch(t, []Handle{"tab-1", "popup-1"}, s.closeLog)
	assert.Equal(t, []Handle{"primary"}, s.Contexts())
}

func TestWithDetail_RestoresAfterCancel(t *testing.T) {
	s := newTabs()
	ctx, cancel := context.WithCancel(context.Background())

	err := WithDetail(ctx, s, "https://example.test", func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []Handle{"primary"}, s.Contexts())
	assert.Equal(t, Handle("primary"), s.Current())
}
