package registry

import (
	"regexp"
	"strings"
	"sync"
)

// matcher is a precompiled route glob. Trailing-star globs are plain prefix
// checks; anything else goes through an anchored regexp.
type matcher struct {
	pattern string
	prefix  string
	re      *regexp.Regexp
	service *Service
}

func compileGlob(pattern string, svc *Service) matcher {
	m := matcher{pattern: pattern, service: svc}
	if i := strings.IndexByte(pattern, '*'); i >= 0 && i == len(pattern)-1 {
		m.prefix = pattern[:i]
		return m
	}
	parts := strings.Split(pattern, "*")
	for i := range parts {
		parts[i] = regexp.QuoteMeta(parts[i])
	}
	m.re = regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
	return m
}

func (m matcher) match(path string) bool {
	if m.re != nil {
		return m.re.MatchString(path)
	}
	return strings.HasPrefix(path, m.prefix)
}

// Registry holds service descriptors and resolves request paths to them.
// Overlapping globs are a configuration error; on overlap the first
// registered service wins.
type Registry struct {
	mu       sync.RWMutex
	services []*Service
	byName   map[string]*Service
	matchers []matcher
}

func New() *Registry {
	return &Registry{byName: map[string]*Service{}}
}

// Set replaces the current registry content, keeping registration order.
// A later descriptor reusing an earlier name is ignored.
func (r *Registry) Set(services []*Service) {
	byName := make(map[string]*Service, len(services))
	list := make([]*Service, 0, len(services))
	var matchers []matcher
	for _, s := range services {
		if s == nil || byName[s.Name] != nil {
			continue
		}
		byName[s.Name] = s
		list = append(list, s)
		for _, p := range s.Routes {
			matchers = append(matchers, compileGlob(p, s))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.services = list
	r.byName = byName
	r.matchers = matchers
}

// Match finds the first registered service with a route glob matching path.
func (r *Registry) Match(path string) (*Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.matchers {
		if m.match(path) {
			return m.service, true
		}
	}
	return nil, false
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (*Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// All returns the descriptors in registration order.
func (r *Registry) All() []*Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Service, len(r.services))
	copy(out, r.services)
	return out
}

// Names returns the service names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.services))
	for i, s := range r.services {
		out[i] = s.Name
	}
	return out
}

// RouteEntry is one compiled glob, used by the routes command.
type RouteEntry struct {
	Pattern  string   `json:"pattern"`
	Service  string   `json:"service"`
	Priority Priority `json:"priority"`
}

// Routes lists compiled globs in match order.
func (r *Registry) Routes() []RouteEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RouteEntry, len(r.matchers))
	for i, m := range r.matchers {
		out[i] = RouteEntry{Pattern: m.pattern, Service: m.service.Name, Priority: m.service.Priority}
	}
	return out
}
