// Package wiki talks to the write-target wiki's Action API: reading page
// text and metadata, and applying edits through a paced, retrying editor.
package wiki

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/teranos/listsync/config"
	"github.com/teranos/listsync/errors"
	"github.com/teranos/listsync/internal/httpclient"
)

// Page is one page's current state as read from the wiki.
type Page struct {
	Title      string
	Text       string
	RevisionID int64
	Namespace  int64
	Missing    bool
}

// api abstracts the Action API calls the editor needs, so tests can
// substitute a fake wiki.
type api interface {
	GetPage(ctx context.Context, title string) (*Page, error)
	Edit(ctx context.Context, title, text string, baseRevID int64, summary string) error
}

// Client reads and writes pages through the MediaWiki Action API.
type Client struct {
	apiURL string
	http   *httpclient.Client
}

// NewClient builds an authenticated Action API client.
func NewClient(cfg config.WikiConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &Client{
		apiURL: cfg.APIURL,
		http:   httpclient.NewWithBearer(timeout, cfg.OAuthToken),
	}
}

// GetPage fetches a page's wikitext, latest revision id and namespace.
func (c *Client) GetPage(ctx context.Context, title string) (*Page, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("prop", "revisions")
	params.Set("rvprop", "content|ids")
	params.Set("rvslots", "main")
	params.Set("titles", title)
	params.Set("format", "json")
	params.Set("formatversion", "2")

	body, err := c.http.Get(ctx, c.apiURL+"?"+params.Encode())
	if err != nil {
		return nil, errors.Wrapf(err, "fetching page %q", title)
	}

	var resp struct {
		Query struct {
			Pages []struct {
				Title     string `json:"title"`
				Namespace int64  `json:"ns"`
				Missing   bool   `json:"missing"`
				Revisions []struct {
					RevID int64 `json:"revid"`
					Slots struct {
						Main struct {
							Content string `json:"content"`
						} `json:"main"`
					} `json:"slots"`
				} `json:"revisions"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(errors.ErrMalformedResponse, err.Error())
	}
	if len(resp.Query.Pages) == 0 {
		return nil, errors.Wrapf(errors.ErrMalformedResponse, "no page in response for %q", title)
	}

	raw := resp.Query.Pages[0]
	p := &Page{
		Title:     raw.Title,
		Namespace: raw.Namespace,
		Missing:   raw.Missing,
	}
	if raw.Missing {
		return p, errors.Wrapf(errors.ErrNotFound, "page %q", title)
	}
	if len(raw.Revisions) == 0 {
		return nil, errors.Wrapf(errors.ErrMalformedResponse, "page %q has no revisions", title)
	}
	p.RevisionID = raw.Revisions[0].RevID
	p.Text = raw.Revisions[0].Slots.Main.Content
	return p, nil
}

// csrfToken fetches a fresh edit token.
func (c *Client) csrfToken(ctx context.Context) (string, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("meta", "tokens")
	params.Set("type", "csrf")
	params.Set("format", "json")

	body, err := c.http.Get(ctx, c.apiURL+"?"+params.Encode())
	if err != nil {
		return "", errors.Wrap(err, "fetching csrf token")
	}

	var resp struct {
		Query struct {
			Tokens struct {
				CSRFToken string `json:"csrftoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(errors.ErrMalformedResponse, err.Error())
	}
	if resp.Query.Tokens.CSRFToken == "" || resp.Query.Tokens.CSRFToken == "+\\" {
		return "", errors.Wrap(errors.ErrAuthFailure, "no csrf token granted")
	}
	return resp.Query.Tokens.CSRFToken, nil
}

// Edit writes new page text against a base revision. The base revision
// lets the wiki detect conflicting edits made since the page was read.
func (c *Client) Edit(ctx context.Context, title, text string, baseRevID int64, summary string) error {
	token, err := c.csrfToken(ctx)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("action", "edit")
	form.Set("title", title)
	form.Set("text", text)
	form.Set("summary", summary)
	form.Set("token", token)
	form.Set("baserevid", strconv.FormatInt(baseRevID, 10))
	form.Set("bot", "1")
	form.Set("format", "json")

	body, err := c.http.PostForm(ctx, c.apiURL, form)
	if err != nil {
		return errors.Wrapf(err, "editing page %q", title)
	}

	var resp struct {
		Edit struct {
			Result string `json:"result"`
		} `json:"edit"`
		Error *struct {
			Code string `json:"code"`
			Info string `json:"info"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return errors.Wrap(errors.ErrMalformedResponse, err.Error())
	}
	if resp.Error != nil {
		return classifyEditError(resp.Error.Code, resp.Error.Info, title)
	}
	if resp.Edit.Result != "Success" {
		return errors.Wrapf(errors.ErrMalformedResponse, "edit of %q returned %q", title, resp.Edit.Result)
	}
	return nil
}

// classifyEditError maps Action API error codes onto the error taxonomy.
func classifyEditError(code, info, title string) error {
	switch code {
	case "editconflict":
		return errors.Wrapf(errors.ErrEditConflict, "page %q: %s", title, info)
	case "badtoken", "assertuserfailed", "assertbotfailed", "permissiondenied", "protectedpage":
		return errors.Wrapf(errors.ErrAuthFailure, "page %q: %s (%s)", title, info, code)
	case "ratelimited", "maxlag", "readonly":
		return errors.Wrapf(errors.ErrTransport, "page %q: %s (%s)", title, info, code)
	default:
		return errors.Wrapf(errors.ErrMalformedResponse, "page %q: %s (%s)", title, info, code)
	}
}
