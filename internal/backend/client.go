package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/arcmetric/contactctl/internal/model"
)

// DefaultBaseURL is where the contacts API lives when nothing is configured.
const DefaultBaseURL = "http://localhost:5000/api/v2"

var (
	_ model.ContactFetcher    = (*Client)(nil)
	_ model.ContactLister     = (*Client)(nil)
	_ model.EnrichmentTrigger = (*Client)(nil)
)

// Client talks to the contacts backend over HTTP. It does not cache or retry;
// every call is a single round trip.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the API rooted at baseURL, which includes
// any path prefix (e.g. "https://api.example.com/api/v2").
func NewClient(baseURL string, client *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// FetchContact retrieves a single contact. A 404 maps to model.ErrNotFound.
func (c *Client) FetchContact(ctx context.Context, id string) (model.Contact, error) {
	op := fmt.Sprintf("fetch contact %s", id)

	resp, err := c.do(ctx, http.MethodGet, c.contactURL(id), op)
	if err != nil {
		return model.Contact{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return model.Contact{}, fmt.Errorf("%s: %w", op, model.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return model.Contact{}, &model.TransportError{Op: op, Err: statusError(resp)}
	}

	var body detailResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.Contact{}, &model.TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if body.Contact == nil {
		return model.Contact{}, fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}

	contact, err := body.Contact.toContact()
	if err != nil {
		return model.Contact{}, &model.TransportError{Op: op, Err: err}
	}
	return contact, nil
}

// ListContacts retrieves one page of contacts. Non-positive limit leaves the
// page size to the backend.
func (c *Client) ListContacts(ctx context.Context, limit, offset int) (model.ContactPage, error) {
	op := "list contacts"

	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	u := c.baseURL + "/contacts"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, u, op)
	if err != nil {
		return model.ContactPage{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.ContactPage{}, &model.TransportError{Op: op, Err: statusError(resp)}
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.ContactPage{}, &model.TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}

	page := model.ContactPage{
		Contacts: make([]model.Contact, 0, len(body.Contacts)),
		Total:    body.Total,
		Limit:    body.Limit,
		Offset:   body.Offset,
	}
	for _, wc := range body.Contacts {
		contact, err := wc.toContact()
		if err != nil {
			return model.ContactPage{}, &model.TransportError{Op: op, Err: err}
		}
		page.Contacts = append(page.Contacts, contact)
	}
	return page, nil
}

// StartEnrichment asks the backend to enrich a contact. Any 2xx is accepted;
// 409 maps to model.ErrConflict and 404 to model.ErrNotFound.
func (c *Client) StartEnrichment(ctx context.Context, id string) error {
	op := fmt.Sprintf("start enrichment for %s", id)

	resp, err := c.do(ctx, http.MethodPost, c.contactURL(id)+"/enrich", op)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// Drain so the connection can be reused; the body carries nothing we need.
		io.Copy(io.Discard, resp.Body)
		return nil
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%s: %w", op, model.ErrConflict)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	default:
		return &model.TransportError{Op: op, Err: statusError(resp)}
	}
}

func (c *Client) contactURL(id string) string {
	return c.baseURL + "/contacts/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, u, op string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, &model.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &model.TransportError{Op: op, Err: err}
	}
	return resp, nil
}
