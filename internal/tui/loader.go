package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/arcmetric/contactctl/internal/model"
)

// ErrCancelled is returned when the user aborts a loader with ctrl+c.
var ErrCancelled = errors.New("cancelled")

const listTimeout = 2 * time.Minute

// PageRequest selects the contacts a loader lists.
type PageRequest struct {
	Source string // shown to the user, usually the backend URL
	Limit  int
	Offset int
}

type pageLoadedMsg struct {
	page model.ContactPage
	err  error
}

type loaderModel struct {
	req     PageRequest
	lister  model.ContactLister
	ctx     context.Context
	cancel  context.CancelFunc
	spinner spinner.Model
	started time.Time
	now     func() time.Time

	page model.ContactPage
	err  error
	done bool
}

func newLoaderModel(lister model.ContactLister, req PageRequest) loaderModel {
	ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
	return loaderModel{
		req:    req,
		lister: lister,
		ctx:    ctx,
		cancel: cancel,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("33"))),
		),
		started: time.Now(),
		now:     time.Now,
	}
}

func (m loaderModel) Init() tea.Cmd {
	return tea.Batch(m.list(), m.spinner.Tick)
}

func (m loaderModel) list() tea.Cmd {
	ctx, lister, req := m.ctx, m.lister, m.req
	return func() tea.Msg {
		page, err := lister.ListContacts(ctx, req.Limit, req.Offset)
		return pageLoadedMsg{page: page, err: err}
	}
}

func (m loaderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pageLoadedMsg:
		if m.done {
			return m, nil
		}
		m.page = msg.page
		m.err = msg.err
		m.done = true
		m.cancel()
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.done = true
			m.err = ErrCancelled
			m.cancel()
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m loaderModel) View() string {
	if m.done {
		if m.err != nil {
			return ""
		}
		return subtitleStyle.Render(pageSummary(m.page)) + "\n"
	}
	elapsed := m.now().Sub(m.started).Truncate(time.Second)
	return fmt.Sprintf("%s Loading contacts %s from %s... %s\n",
		m.spinner.View(), pageRange(m.req.Offset, m.req.Limit), m.req.Source,
		subtitleStyle.Render(elapsed.String()))
}

// pageRange renders the 1-based positions a request covers, e.g. "101-200".
func pageRange(offset, limit int) string {
	return fmt.Sprintf("%d-%d", offset+1, offset+limit)
}

func pageSummary(p model.ContactPage) string {
	if len(p.Contacts) == 0 {
		return fmt.Sprintf("No contacts at offset %d (%d total)", p.Offset, p.Total)
	}
	return fmt.Sprintf("Loaded contacts %s of %d", pageRange(p.Offset, len(p.Contacts)), p.Total)
}

// RunLoader lists one page of contacts behind a spinner. It renders inline
// (no alt screen) and returns ErrCancelled if the user gives up.
func RunLoader(lister model.ContactLister, req PageRequest) (model.ContactPage, error) {
	m := newLoaderModel(lister, req)
	defer m.cancel()

	result, err := tea.NewProgram(m).Run()
	if err != nil {
		return model.ContactPage{}, err
	}
	final := result.(loaderModel)
	return final.page, final.err
}
