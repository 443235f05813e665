package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
)

var (
	sockPath   = flag.String("sock", "/run/capacity-admission/directory.sock", "unix socket path to listen on")
	listenAddr = flag.String("listen", "", "serve on this TCP address instead of the unix socket")
	overflow   = flag.String("overflow", "free", "id of the overflow pool")
)

type capacity struct {
	CPU    string `json:"cpu"`
	GPU    string `json:"gpu"`
	Memory string `json:"memory"`
}

type allocation struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Capacity capacity `json:"capacity"`
}

type server struct {
	mu          sync.Mutex
	overflow    string
	allocations map[string]allocation
}

// newServer seeds allocations from EMULATOR_ALLOCATIONS, a comma separated
// list of id=cpu/gpu/memory, e.g. "free=16/2/64Gi,eng=64/8/256Gi".
func newServer(overflowID string) *server {
	s := &server{overflow: overflowID, allocations: make(map[string]allocation)}
	if env := os.Getenv("EMULATOR_ALLOCATIONS"); env != "" {
		for _, a := range strings.Split(env, ",") {
			id, spec, ok := strings.Cut(strings.TrimSpace(a), "=")
			if !ok || id == "" {
				continue
			}
			parts := strings.SplitN(spec, "/", 3)
			for len(parts) < 3 {
				parts = append(parts, "0")
			}
			s.allocations[id] = allocation{ID: id, Capacity: capacity{CPU: parts[0], GPU: parts[1], Memory: parts[2]}}
		}
	}
	if len(s.allocations) == 0 {
		s.allocations["free"] = allocation{ID: "free", Name: "Shared overflow pool", Capacity: capacity{"16", "2", "64Gi"}}
		s.allocations["eng"] = allocation{ID: "eng", Name: "Faculty of Engineering", Capacity: capacity{"64", "8", "256Gi"}}
	}
	if _, ok := s.allocations[s.overflow]; !ok {
		s.allocations[s.overflow] = allocation{ID: s.overflow, Capacity: capacity{"0", "0", "0"}}
	}
	return s
}

func (s *server) handleAllocations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := struct {
		OverflowPool string       `json:"overflowPool"`
		Allocations  []allocation `json:"allocations"`
	}{OverflowPool: s.overflow}
	for _, a := range s.allocations {
		out.Allocations = append(out.Allocations, a)
	}
	sort.Slice(out.Allocations, func(i, j int) bool { return out.Allocations[i].ID < out.Allocations[j].ID })
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func readJSON(r io.Reader, v interface{}) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// handleCapacity replaces one allocation's base capacity, standing in for
// the redistribution process.
func (s *server) handleCapacity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req allocation
	if err := readJSON(r.Body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.allocations[req.ID]; ok && req.Name == "" {
		req.Name = prev.Name
	}
	s.allocations[req.ID] = req
	w.WriteHeader(http.StatusOK)
}

func main() {
	flag.Parse()
	s := newServer(*overflow)
	h := http.NewServeMux()
	h.HandleFunc("/allocations", s.handleAllocations)
	h.HandleFunc("/capacity", s.handleCapacity)

	if *listenAddr != "" {
		log.Printf("listening on %s", *listenAddr)
		log.Fatal(http.ListenAndServe(*listenAddr, h))
	}
	if *sockPath == "" {
		log.Fatal("sock path required")
	}
	d := path.Dir(*sockPath)
	if err := os.MkdirAll(d, 0755); err != nil {
		log.Fatalf("mkdir: %v", err)
	}
	_ = os.Remove(*sockPath)
	ln, err := net.Listen("unix", *sockPath)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	log.Printf("listening on unix socket %s", *sockPath)
	if err := http.Serve(ln, h); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
