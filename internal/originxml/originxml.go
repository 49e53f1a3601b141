// Package originxml fetches and parses the origin's UPnP device
// description XML, extracting the {deviceType, UDN, server} triple that
// drives every outbound SSDP packet. Grounded on server/dlna/device.go's
// DeviceDescription struct tags and server/sonos_cast/discovery.go's
// fetchDeviceDescription GET-and-unmarshal flow.
package originxml

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dlna-proxy/dlnaproxy/internal/ssdp"
)

// DefaultServerUA is substituted when the origin's response carries no
// Server header.
const DefaultServerUA = "DLNAProxy/1.0"

// ErrUnreachable wraps network-level failures fetching the description.
var ErrUnreachable = errors.New("origin-unreachable")

// ErrBadXML wraps XML parse or missing-field failures.
var ErrBadXML = errors.New("bad-xml")

// deviceDescription is the subset of the UPnP root-device XML document
// this proxy cares about; unknown elements are ignored by encoding/xml.
type deviceDescription struct {
	XMLName xml.Name `xml:"root"`
	Device  struct {
		DeviceType string `xml:"deviceType"`
		UDN        string `xml:"UDN"`
	} `xml:"device"`
}

// Fetcher fetches EndpointInfo from a fixed description URL. It implements
// ssdp.EndpointFetcher.
type Fetcher struct {
	DescURL        string
	ConnectTimeout time.Duration
	client         *http.Client
}

// New constructs a Fetcher whose HTTP client bounds only the connect
// phase to connectTimeout, via the dialer rather than http.Client.Timeout
// — a slow-but-reachable origin streaming a normal-sized description
// document should not be misclassified as unreachable just because the
// whole request took longer than connectTimeout.
func New(descURL string, connectTimeout time.Duration) *Fetcher {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &Fetcher{
		DescURL:        descURL,
		ConnectTimeout: connectTimeout,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: dialer.DialContext,
			},
		},
	}
}

// Fetch performs the GET and XML parse. Callers do not retry internally;
// the SSDP broadcaster retries on the next period, and the engine's
// --wait logic retries around startup.
func (f *Fetcher) Fetch(ctx context.Context) (ssdp.EndpointInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.DescURL, nil)
	if err != nil {
		return ssdp.EndpointInfo{}, fmt.Errorf("%w: building request: %v", ErrUnreachable, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return ssdp.EndpointInfo{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ssdp.EndpointInfo{}, fmt.Errorf("%w: unexpected status %d", ErrUnreachable, resp.StatusCode)
	}

	serverUA := resp.Header.Get("Server")
	if serverUA == "" {
		serverUA = DefaultServerUA
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ssdp.EndpointInfo{}, fmt.Errorf("%w: reading body: %v", ErrUnreachable, err)
	}

	var desc deviceDescription
	if err := xml.Unmarshal(body, &desc); err != nil {
		return ssdp.EndpointInfo{}, fmt.Errorf("%w: %v", ErrBadXML, err)
	}

	if desc.Device.DeviceType == "" || desc.Device.UDN == "" {
		return ssdp.EndpointInfo{}, fmt.Errorf("%w: missing deviceType or UDN", ErrBadXML)
	}

	return ssdp.EndpointInfo{
		DeviceType: desc.Device.DeviceType,
		UDN:        desc.Device.UDN,
		ServerUA:   serverUA,
	}, nil
}
