package tenant

import "sort"

// Registry maps tenant id to its Session. Producer, Consumer, and Drainer
// each call Tenants() once per tick and operate every tenant in isolation.
type Registry struct {
	sessions map[ID]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[ID]*Session)}
}

// Register adds or replaces a tenant's Session.
func (r *Registry) Register(s *Session) {
	r.sessions[s.Tenant] = s
}

// Get returns the Session for a tenant, or nil if unknown.
func (r *Registry) Get(id ID) *Session {
	return r.sessions[id]
}

// Tenants returns all registered tenant ids in a stable order.
func (r *Registry) Tenants() []ID {
	ids := make([]ID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Sessions returns all registered sessions in tenant-id order.
func (r *Registry) Sessions() []*Session {
	ids := r.Tenants()
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.sessions[id])
	}
	return out
}
