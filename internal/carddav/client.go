// Package carddav fetches contacts from a CardDAV server such as iCloud.
package carddav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-vcard"
	"github.com/emersion/go-webdav"
	dav "github.com/emersion/go-webdav/carddav"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/syncer"
)

const (
	// DefaultEndpoint is the iCloud contacts service.
	DefaultEndpoint = "https://contacts.icloud.com"
	// DefaultAddressBook is the iCloud address book below the home set.
	DefaultAddressBook = "card"

	discoveryPath  = "/home"
	defaultTimeout = 60 * time.Second
)

// Config describes where the directory lives.
type Config struct {
	Endpoint string
	// AddressBook is joined onto the address-book home set. Empty selects
	// the first address book the server lists.
	AddressBook string
	Timeout     time.Duration
}

// Client implements syncer.Fetcher. It keeps no session between calls:
// every fetch discovers the principal and the home set again.
type Client struct {
	endpoint    string
	addressBook string
	httpClient  *http.Client
	logger      *slog.Logger
}

// New creates a Client. Zero fields in cfg fall back to iCloud defaults,
// except AddressBook, which is used as given.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:    strings.TrimSuffix(cfg.Endpoint, "/"),
		addressBook: strings.Trim(cfg.AddressBook, "/"),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

// FetchContacts returns every card of the address book. Any failure is
// wrapped with apperr.ErrTransport.
func (c *Client) FetchContacts(ctx context.Context, creds syncer.Credentials) ([]vcard.Card, error) {
	hc := webdav.HTTPClientWithBasicAuth(c.httpClient, creds.Username, creds.Password)
	dc, err := dav.NewClient(hc, c.endpoint+discoveryPath)
	if err != nil {
		return nil, transportErr("new client", err)
	}

	principal, err := dc.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, transportErr("find principal", err)
	}
	principalURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, transportErr("parse endpoint", err)
	}
	principalURL = principalURL.ResolveReference(&url.URL{Path: principal})

	homeURL, err := findHomeSet(ctx, hc, principalURL)
	if err != nil {
		return nil, transportErr("find address book home", err)
	}

	// Address books live on the host that owns the home set.
	if homeURL.Host != principalURL.Host || homeURL.Scheme != principalURL.Scheme {
		dc, err = dav.NewClient(hc, homeURL.Scheme+"://"+homeURL.Host)
		if err != nil {
			return nil, transportErr("new data client", err)
		}
	}

	book, err := c.resolveAddressBook(ctx, dc, homeURL.Path)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("carddav: querying address book",
		slog.String("principal", principal),
		slog.String("host", homeURL.Host),
		slog.String("address_book", book))

	objects, err := dc.QueryAddressBook(ctx, book, &dav.AddressBookQuery{
		DataRequest: dav.AddressDataRequest{AllProp: true},
	})
	if err != nil {
		return nil, transportErr("query address book", err)
	}

	cards := make([]vcard.Card, 0, len(objects))
	for _, obj := range objects {
		if obj.Card == nil {
			continue
		}
		cards = append(cards, obj.Card)
	}
	return cards, nil
}

func (c *Client) resolveAddressBook(ctx context.Context, dc *dav.Client, home string) (string, error) {
	if c.addressBook != "" {
		return path.Join(home, c.addressBook) + "/", nil
	}
	books, err := dc.FindAddressBooks(ctx, home)
	if err != nil {
		return "", transportErr("list address books", err)
	}
	if len(books) == 0 {
		return "", transportErr("list address books", fmt.Errorf("no address book below %s", home))
	}
	return books[0].Path, nil
}

func transportErr(op string, err error) error {
	return fmt.Errorf("carddav: %s: %w: %w", op, apperr.ErrTransport, err)
}

var _ syncer.Fetcher = (*Client)(nil)
