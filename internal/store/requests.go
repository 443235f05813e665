package store

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/linskybing/faculty-admission/internal/decision"
	"github.com/linskybing/faculty-admission/internal/request"
)

type requestsFile struct {
	Version  string            `json:"version"`
	Requests []request.Request `json:"requests"`
}

// RequestStore is a request.Store persisting every request in one JSON file,
// in creation order.
type RequestStore struct {
	path string

	// mu orders whole write cycles; mem guards its own reads.
	mu  sync.Mutex
	mem *request.MemoryStore
}

var _ request.Store = (*RequestStore)(nil)

func newRequestStore(path string) (*RequestStore, error) {
	requests, err := ReadRequests(path)
	if err != nil {
		return nil, err
	}
	mem := request.NewMemoryStore()
	if err := mem.Load(requests); err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return &RequestStore{path: path, mem: mem}, nil
}

func (s *RequestStore) Create(r request.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		return errors.New("request without id")
	}
	if _, err := s.mem.Get(r.ID); err == nil {
		return errors.Wrapf(request.ErrAlreadyExists, "%q", r.ID)
	}
	all, err := s.mem.List()
	if err != nil {
		return err
	}
	if err := s.write(append(all, r)); err != nil {
		return err
	}
	return s.mem.Create(r)
}

func (s *RequestStore) Get(id string) (request.Request, error) {
	return s.mem.Get(id)
}

func (s *RequestStore) SetStatus(id string, status decision.Verdict) (request.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.mem.Get(id); err != nil {
		return request.Request{}, err
	}
	all, err := s.mem.List()
	if err != nil {
		return request.Request{}, err
	}
	for i := range all {
		if all[i].ID == id {
			all[i].Status = status
		}
	}
	if err := s.write(all); err != nil {
		return request.Request{}, err
	}
	return s.mem.SetStatus(id, status)
}

func (s *RequestStore) List() ([]request.Request, error) {
	return s.mem.List()
}

func (s *RequestStore) write(all []request.Request) error {
	return writeJSON(s.path, requestsFile{Version: formatVersion, Requests: all})
}

// ReadRequests reads a requests file without locking its state directory. A
// missing file holds no requests.
func ReadRequests(path string) ([]request.Request, error) {
	var f requestsFile
	found, err := readJSON(path, &f)
	if err != nil || !found {
		return nil, err
	}
	if err := checkVersion(path, f.Version); err != nil {
		return nil, err
	}
	return f.Requests, nil
}
