package router

// Subscribers returns the number of subscribers registered for event.
func (r *Router) Subscribers(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[event])
}

// Events returns the event names that currently have subscribers.
func (r *Router) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}
