package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arcmetric/contactctl/internal/enrichment"
	"github.com/arcmetric/contactctl/internal/model"
	"github.com/arcmetric/contactctl/internal/poller"
)

// Lines per contact in the list view (name + subtitle + blank separator).
const contactItemHeight = 3

const timeLayout = "2006-01-02 15:04 MST"

func badge(s model.EnrichmentStatus) string {
	st, ok := badgeStyles[string(s)]
	if !ok {
		st = badgeStyles["pending"]
	}
	return st.Render("● " + string(s))
}

// StatusLine describes an enrichment update for the status bar.
func StatusLine(u enrichment.Update) string {
	switch u.State {
	case poller.Idle:
		return "enrichment requested"
	case poller.Running:
		if u.Attempt == 0 {
			return "enrichment started, waiting for first check"
		}
		if u.Err != nil {
			return fmt.Sprintf("enriching… attempt %d/%d (last check failed)", u.Attempt, u.MaxAttempts)
		}
		return fmt.Sprintf("enriching… attempt %d/%d", u.Attempt, u.MaxAttempts)
	case poller.Completed:
		return "enrichment completed"
	case poller.Failed:
		if u.HardFailure() {
			return fmt.Sprintf("could not start enrichment: %v", u.Err)
		}
		return "enrichment failed"
	case poller.TimedOut:
		return fmt.Sprintf("enrichment still running after %d checks, gave up", u.Attempt)
	case poller.Cancelled:
		return "enrichment cancelled"
	}
	return u.State.String()
}

// FormatPayload renders an enrichment payload as indented JSON.
func FormatPayload(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func renderContacts(contacts []model.Contact, cursor int) string {
	if len(contacts) == 0 {
		return "  (no contacts)"
	}

	var b strings.Builder
	for i, c := range contacts {
		nameSt := nameStyle
		subtitleSt := subtitleStyle
		prefix := "  "
		if i == cursor {
			nameSt = selectedNameStyle
			subtitleSt = selectedSubtitleStyle
			prefix = "> "
		}

		b.WriteString(prefix)
		b.WriteString(nameSt.Render(c.Name))
		b.WriteString("  ")
		b.WriteString(badge(c.Status))
		b.WriteByte('\n')

		sub := c.Email
		if c.Company != "" {
			sub += " · " + c.Company
		}
		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(sub))
		b.WriteByte('\n')

		if i < len(contacts)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func renderContact(c model.Contact, status string, loadErr string, width int) string {
	var b strings.Builder

	addField := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(detailLabelStyle.Render(label))
		b.WriteString(detailValueStyle.Render(value))
		b.WriteByte('\n')
	}

	addField("Name", c.Name)
	addField("Email", c.Email)
	addField("Title", c.Title)
	addField("Company", c.Company)
	addField("Phone", c.Phone)
	addField("LinkedIn", c.LinkedInURL)
	addField("Contact ID", c.ID)
	if c.CreatedAt != nil {
		addField("Created", c.CreatedAt.Local().Format(timeLayout))
	}

	b.WriteByte('\n')
	b.WriteString(detailLabelStyle.Render("Enrichment"))
	b.WriteString(badge(c.Status))
	b.WriteByte('\n')
	addField("Apex score", c.ApexScore)

	if status != "" {
		b.WriteByte('\n')
		b.WriteString(hintStyle.Render("  "+status) + "\n")
	}
	if loadErr != "" {
		b.WriteByte('\n')
		b.WriteString(errorStyle.Render("⚠ "+loadErr) + "\n")
	}

	wrapWidth := max(width-8, 20)
	if c.Enriched() {
		label := "── Enrichment Data "
		fill := strings.Repeat("─", max(wrapWidth-len(label), 3))
		b.WriteByte('\n')
		b.WriteString(dividerStyle.Render(label+fill) + "\n\n")
		b.WriteString(payloadStyle.Render(FormatPayload(c.Enrichment)) + "\n")
	} else if status == "" && c.Status != model.StatusProcessing {
		b.WriteByte('\n')
		b.WriteString(hintStyle.Render("  press e to enrich this contact") + "\n")
	}

	return b.String()
}
