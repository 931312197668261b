package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/arcmetric/contactctl/internal/model"
)

type pageLister struct {
	page      model.ContactPage
	err       error
	gotLimit  int
	gotOffset int
}

func (l *pageLister) ListContacts(ctx context.Context, limit, offset int) (model.ContactPage, error) {
	l.gotLimit, l.gotOffset = limit, offset
	if err := ctx.Err(); err != nil {
		return model.ContactPage{}, err
	}
	return l.page, l.err
}

func TestLoader_ListsRequestedPage(t *testing.T) {
	lister := &pageLister{page: model.ContactPage{
		Contacts: []model.Contact{sampleContact(), sampleContact()},
		Total:    42,
		Limit:    20,
		Offset:   20,
	}}
	m := newLoaderModel(lister, PageRequest{Source: "http://backend/api/v2", Limit: 20, Offset: 20})
	defer m.cancel()

	if view := m.View(); !strings.Contains(view, "Loading contacts 21-40 from http://backend/api/v2") {
		t.Errorf("loading view = %q", view)
	}

	next, cmd := m.Update(m.list()())
	if cmd == nil {
		t.Error("expected quit command after the page arrived")
	}
	done := next.(loaderModel)
	if lister.gotLimit != 20 || lister.gotOffset != 20 {
		t.Errorf("ListContacts(limit=%d, offset=%d), want 20/20", lister.gotLimit, lister.gotOffset)
	}
	if done.err != nil || len(done.page.Contacts) != 2 {
		t.Fatalf("page = %+v, err = %v", done.page, done.err)
	}
	if view := done.View(); !strings.Contains(view, "Loaded contacts 21-22 of 42") {
		t.Errorf("summary view = %q", view)
	}
}

func TestLoader_EmptyPageSummary(t *testing.T) {
	got := pageSummary(model.ContactPage{Total: 3, Offset: 100})
	if got != "No contacts at offset 100 (3 total)" {
		t.Errorf("pageSummary = %q", got)
	}
}

func TestLoader_ListErrorIsReturned(t *testing.T) {
	boom := errors.New("backend down")
	m := newLoaderModel(&pageLister{err: boom}, PageRequest{Limit: 10})
	defer m.cancel()

	next, _ := m.Update(m.list()())
	if err := next.(loaderModel).err; !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestLoader_CancelAbortsRequest(t *testing.T) {
	lister := &pageLister{}
	m := newLoaderModel(lister, PageRequest{Limit: 10})
	defer m.cancel()

	next, _ := m.Update(key("q"))
	cancelled := next.(loaderModel)
	if !errors.Is(cancelled.err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", cancelled.err)
	}
	if cancelled.ctx.Err() == nil {
		t.Error("expected the list request context to be cancelled")
	}

	// A page arriving after cancellation does not replace the result.
	after, _ := cancelled.Update(pageLoadedMsg{page: model.ContactPage{Total: 1}})
	if !errors.Is(after.(loaderModel).err, ErrCancelled) {
		t.Error("late page overwrote the cancellation")
	}
}
