package carddav

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/emersion/go-webdav"
)

const homeSetRequest = `<?xml version="1.0" encoding="UTF-8"?>
<d:propfind xmlns:d="DAV:" xmlns:card="urn:ietf:params:xml:ns:carddav">
  <d:prop><card:addressbook-home-set/></d:prop>
</d:propfind>`

type homeSetMultistatus struct {
	XMLName   xml.Name `xml:"DAV: multistatus"`
	Responses []struct {
		Propstats []struct {
			Prop struct {
				HomeSet struct {
					Href string `xml:"DAV: href"`
				} `xml:"urn:ietf:params:xml:ns:carddav addressbook-home-set"`
			} `xml:"DAV: prop"`
		} `xml:"DAV: propstat"`
	} `xml:"DAV: response"`
}

// findHomeSet returns the absolute address-book home set of principal.
// The server may name a different host (iCloud partitions), so the href
// is resolved against the principal URL instead of being cut to a path.
func findHomeSet(ctx context.Context, hc webdav.HTTPClient, principal *url.URL) (*url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, "PROPFIND", principal.String(), strings.NewReader(homeSetRequest))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set("Depth", "0")

	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("PROPFIND %s: %s", principal.Path, resp.Status)
	}

	var ms homeSetMultistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, fmt.Errorf("decode multistatus: %w", err)
	}
	for _, r := range ms.Responses {
		for _, ps := range r.Propstats {
			href := strings.TrimSpace(ps.Prop.HomeSet.Href)
			if href == "" {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				return nil, fmt.Errorf("parse home set %q: %w", href, err)
			}
			return principal.ResolveReference(ref), nil
		}
	}
	return nil, fmt.Errorf("no address book home set for %s", principal.Path)
}
