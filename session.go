package norm

// Session is the per-operation identity map: a cache from (primary label,
// identity value) to the live instance, preventing duplicate materialization
// of the same graph node within one logical operation. A session is created
// at the start of a repository call and discarded at its end; pass one
// explicitly with WithSession to extend it across calls.
//
// Sessions are confined to one call tree and are not safe for concurrent
// use; concurrent repository calls must each use their own session.
type Session struct {
	entries map[sessionKey]any
}

type sessionKey struct {
	label string
	id    any
}

// NewSession returns an empty identity map.
func NewSession() *Session {
	return &Session{entries: make(map[sessionKey]any)}
}

// Get returns the cached instance for (label, id), if any. A hit returns the
// identical instance every time, so relationship cycles rehydrate without
// duplicate objects.
func (s *Session) Get(label string, id any) (any, bool) {
	v, ok := s.entries[sessionKey{label: label, id: id}]
	return v, ok
}

// Put caches an instance under (label, id). The session holds a non-owning
// reference; the application owns the instance.
func (s *Session) Put(label string, id any, instance any) {
	s.entries[sessionKey{label: label, id: id}] = instance
}

// Len reports the number of cached instances.
func (s *Session) Len() int { return len(s.entries) }
