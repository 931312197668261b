package tui

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/arcmetric/contactctl/internal/enrichment"
	"github.com/arcmetric/contactctl/internal/model"
)

const requestTimeout = 30 * time.Second

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

// Enricher starts and cancels enrichment requests.
type Enricher interface {
	Request(ctx context.Context, id string) (*enrichment.Enrichment, error)
}

// contactFetchedMsg is sent when an async detail fetch completes.
type contactFetchedMsg struct {
	contact model.Contact
	err     error
}

// enrichStartedMsg is sent once the controller accepted (or refused) a request.
type enrichStartedMsg struct {
	req *enrichment.Enrichment
	err error
}

// enrichUpdateMsg carries one update of req; closed means the stream ended.
type enrichUpdateMsg struct {
	req    *enrichment.Enrichment
	update enrichment.Update
	closed bool
}

type browserModel struct {
	contacts     []model.Contact
	total        int
	listViewport viewport.Model
	cursor       int
	width        int
	height       int
	ready        bool

	view           viewState
	detail         model.Contact
	detailLoading  bool
	detailError    string
	detailViewport viewport.Model

	fetcher  model.ContactFetcher
	enricher Enricher

	active *enrichment.Enrichment
	status string

	wantQuit bool
}

func newBrowserModel(page model.ContactPage, fetcher model.ContactFetcher, enricher Enricher) browserModel {
	return browserModel{
		contacts: page.Contacts,
		total:    page.Total,
		fetcher:  fetcher,
		enricher: enricher,
	}
}

func (m browserModel) Init() tea.Cmd {
	return nil
}

func (m browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		if m.view == viewDetail {
			m.detailViewport.Width = m.width - 4
			m.detailViewport.Height = m.height - 4
			m.refreshDetail()
		}
		return m, nil

	case contactFetchedMsg:
		m.detailLoading = false
		if msg.err != nil {
			m.detailError = fmt.Sprintf("failed to refresh contact: %v", msg.err)
		} else if msg.contact.ID == m.detail.ID {
			m.detailError = ""
			m.setContact(msg.contact)
		}
		m.refreshDetail()
		return m, nil

	case enrichStartedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("could not request enrichment: %v", msg.err)
			m.refreshDetail()
			return m, nil
		}
		if m.view != viewDetail || msg.req.ContactID() != m.detail.ID {
			// The user left the contact before the request was accepted.
			msg.req.Cancel()
			return m, nil
		}
		m.active = msg.req
		return m, listen(msg.req, msg.req.Updates())

	case enrichUpdateMsg:
		if msg.req != m.active || msg.closed {
			return m, nil
		}
		m.status = StatusLine(msg.update)
		if msg.update.Contact != nil {
			m.setContact(*msg.update.Contact)
		}
		m.refreshDetail()
		if msg.update.Terminal() {
			m.active = nil
			return m, nil
		}
		return m, listen(msg.req, msg.req.Updates())

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetailView(msg)
		}
		return m.updateListView(msg)
	}

	return m, nil
}

func (m browserModel) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.wantQuit = true
		return m, tea.Quit
	case "up", "k":
		m.cursor = clamp(m.cursor-1, 0, max(len(m.contacts)-1, 0))
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.cursor = clamp(m.cursor+1, 0, max(len(m.contacts)-1, 0))
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		return m.openDetailView()
	}

	var cmd tea.Cmd
	m.listViewport, cmd = m.listViewport.Update(msg)
	return m, cmd
}

func (m browserModel) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.cancelActive()
		m.wantQuit = true
		return m, tea.Quit
	case "esc", "backspace":
		m.cancelActive()
		m.view = viewList
		m.status = ""
		m.recalcContent()
		return m, nil
	case "e":
		if m.enricher == nil || m.active != nil {
			return m, nil
		}
		m.status = "requesting enrichment…"
		m.refreshDetail()
		return m, m.requestCmd(m.detail.ID)
	case "c":
		if m.active != nil {
			// The Cancelled update arrives through the stream.
			m.active.Cancel()
		}
		return m, nil
	case "r":
		if m.fetcher != nil && !m.detailLoading {
			m.detailLoading = true
			return m, m.fetchCmd(m.detail.ID)
		}
		return m, nil
	case "o":
		if m.detail.LinkedInURL != "" {
			openURL(m.detail.LinkedInURL)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailViewport, cmd = m.detailViewport.Update(msg)
	return m, cmd
}

func (m *browserModel) cancelActive() {
	if m.active != nil {
		m.active.Cancel()
		m.active = nil
	}
}

func (m browserModel) openDetailView() (tea.Model, tea.Cmd) {
	if len(m.contacts) == 0 {
		return m, nil
	}

	m.view = viewDetail
	m.detail = m.contacts[m.cursor]
	m.detailError = ""
	m.status = ""
	m.detailViewport = viewport.New(m.width-4, m.height-4)
	m.refreshDetail()

	if m.fetcher != nil {
		m.detailLoading = true
		return m, m.fetchCmd(m.detail.ID)
	}
	return m, nil
}

func (m browserModel) fetchCmd(id string) tea.Cmd {
	fetcher := m.fetcher
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		c, err := fetcher.FetchContact(ctx, id)
		return contactFetchedMsg{contact: c, err: err}
	}
}

func (m browserModel) requestCmd(id string) tea.Cmd {
	enricher := m.enricher
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		req, err := enricher.Request(ctx, id)
		return enrichStartedMsg{req: req, err: err}
	}
}

// listen waits for the next update on ch.
func listen(req *enrichment.Enrichment, ch <-chan enrichment.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		return enrichUpdateMsg{req: req, update: u, closed: !ok}
	}
}

func (m *browserModel) setContact(c model.Contact) {
	m.detail = c
	for i := range m.contacts {
		if m.contacts[i].ID == c.ID {
			m.contacts[i] = c
			break
		}
	}
}

func (m *browserModel) refreshDetail() {
	m.detailViewport.SetContent(renderContact(m.detail, m.status, m.detailError, m.width))
}

func (m *browserModel) ensureCursorVisible() {
	vp := &m.listViewport
	cursorTop := m.cursor * contactItemHeight
	cursorBottom := cursorTop + contactItemHeight - 1

	if cursorTop < vp.YOffset {
		vp.SetYOffset(cursorTop)
	} else if cursorBottom >= vp.YOffset+vp.Height {
		vp.SetYOffset(cursorBottom - vp.Height + 1)
	}
}

func (m *browserModel) recalcLayout() {
	width := max(m.width-2, 20)
	// Header (1 line) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	height := max(m.height-4, 5)

	if !m.ready {
		m.listViewport = viewport.New(width, height)
		m.ready = true
	} else {
		m.listViewport.Width = width
		m.listViewport.Height = height
	}
	m.recalcContent()
}

func (m *browserModel) recalcContent() {
	m.listViewport.SetContent(renderContacts(m.contacts, m.cursor))
}

func (m browserModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.view == viewDetail {
		return m.viewDetail()
	}
	return m.viewList()
}

func (m browserModel) viewList() string {
	header := headerStyle.Render(fmt.Sprintf("Contacts (%d of %d)", len(m.contacts), m.total))
	pane := borderStyle.Width(m.listViewport.Width).Render(m.listViewport.View())
	statusBar := statusBarStyle.Width(m.width).Render(" ↑/↓ cursor  enter detail  q quit")
	return header + "\n" + pane + "\n" + statusBar
}

func (m browserModel) viewDetail() string {
	title := detailTitleStyle.Render("Contact Details")
	if m.detailLoading {
		title += "  (loading...)"
	}

	content := borderStyle.Width(m.width - 2).Render(m.detailViewport.View())

	statusText := " e enrich  r refresh  o open profile  esc back  ↑/↓ scroll  q quit"
	if m.active != nil {
		statusText = " c cancel enrichment  esc back  ↑/↓ scroll  q quit"
	}
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return title + "\n" + content + "\n" + statusBar
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// openURL opens url in the default system browser, fire-and-forget.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// RunBrowser launches the interactive contact browser. fetcher refreshes a
// contact when its detail view opens; enricher may be nil to disable the
// enrich key. Any enrichment still running when the user leaves is cancelled.
func RunBrowser(page model.ContactPage, fetcher model.ContactFetcher, enricher Enricher) error {
	m := newBrowserModel(page, fetcher, enricher)

	p := tea.NewProgram(m, tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return err
	}
	final := result.(browserModel)
	final.cancelActive()
	return nil
}
