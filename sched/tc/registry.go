package tc

import "go.uber.org/zap"

// Registry is a name -> Node map, scoped per scheduler tree rather than
// process-wide: tests and independent workers each construct a fresh
// Registry instead of sharing process-global state, while still exposing
// the "exactly one node per name" invariant the original C++ singleton
// provided.
type Registry struct {
	nodes map[string]Node
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]Node)}
}

// register records name -> n, failing if the name is already taken.
func (r *Registry) register(name string, n Node) error {
	if _, exists := r.nodes[name]; exists {
		return ErrDuplicateName
	}
	r.nodes[name] = n
	logger.Debug("registered node", zap.String("name", name))
	return nil
}

// clear removes name from the registry. Returns whether it was present.
func (r *Registry) clear(name string) bool {
	if _, exists := r.nodes[name]; !exists {
		return false
	}
	delete(r.nodes, name)
	return true
}

// Find looks up a node by name.
func (r *Registry) Find(name string) (Node, bool) {
	n, ok := r.nodes[name]
	return n, ok
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	return len(r.nodes)
}
