package directory

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	configv1 "github.com/linskybing/faculty-admission/api/config/v1"
)

// AllocationsPath is the path a directory service serves its listing on.
const AllocationsPath = "/allocations"

// Listing is the wire form of a directory service's answer.
type Listing struct {
	OverflowPool string                `json:"overflowPool"`
	Allocations  []configv1.Allocation `json:"allocations"`
}

// Lister is a Directory that can enumerate its allocations.
type Lister interface {
	Directory
	List() []Allocation
}

var (
	_ Lister = (*Static)(nil)
	_ Lister = (*Remote)(nil)
)

// Remote is a Directory backed by an allocation directory service. Lookups
// are served from the listing cached by the last successful Fetch.
type Remote struct {
	client  *http.Client
	baseURL string
	cache   *Static
}

// NewRemote returns a client for endpoint, either an http(s) URL or
// unix:///path/to/socket for a node-local service.
func NewRemote(endpoint string) (*Remote, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing directory endpoint %q", endpoint)
	}
	r := &Remote{cache: &Static{allocations: make(map[string]Allocation)}}
	switch u.Scheme {
	case "unix":
		sock := u.Path
		transport := &http.Transport{DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return (&net.Dialer{Timeout: 2 * time.Second}).DialContext(ctx, "unix", sock)
		}}
		r.client = &http.Client{Transport: transport, Timeout: 5 * time.Second}
		r.baseURL = "http://unix"
	case "http", "https":
		r.client = &http.Client{Timeout: 5 * time.Second}
		r.baseURL = strings.TrimSuffix(endpoint, "/")
	default:
		return nil, errors.Errorf("unsupported directory endpoint scheme %q", u.Scheme)
	}
	return r, nil
}

// Fetch downloads the listing and replaces the cache with it. A failed fetch
// keeps the previous listing.
func (r *Remote) Fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+AllocationsPath, nil)
	if err != nil {
		return errors.Wrap(err, "building directory request")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "fetching allocation directory")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("allocation directory returned status: %s", resp.Status)
	}

	var listing Listing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return errors.Wrap(err, "decoding allocation directory")
	}
	next, err := FromConfig(&configv1.Config{OverflowPool: listing.OverflowPool, Allocations: listing.Allocations})
	if err != nil {
		return errors.Wrap(err, "allocation directory listing")
	}
	r.cache.Replace(next)
	klog.V(2).InfoS("Allocation directory fetched", "endpoint", r.baseURL, "allocations", len(listing.Allocations))
	return nil
}

func (r *Remote) Get(id string) (Allocation, error) {
	return r.cache.Get(id)
}

func (r *Remote) OverflowPoolID() string {
	return r.cache.OverflowPoolID()
}

func (r *Remote) List() []Allocation {
	return r.cache.List()
}
