package realtime

import "sync"

type room struct {
	mu      sync.Mutex
	tableID string
	clients map[*client]struct{}
}

func newRoom(tableID string) *room {
	return &room{tableID: tableID, clients: make(map[*client]struct{})}
}

func (r *room) join(c *client) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
}

// leave reports whether the room is now empty.
func (r *room) leave(c *client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		c.closeSend()
	}
	return len(r.clients) == 0
}

func (r *room) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// deliver queues payload on every client except sender. Clients whose buffer
// is full are evicted.
func (r *room) deliver(payload []byte, sender *client) (int, []*client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delivered := 0
	var dropped []*client
	for c := range r.clients {
		if c == sender {
			continue
		}
		select {
		case c.send <- payload:
			delivered++
		default:
			delete(r.clients, c)
			c.closeSend()
			dropped = append(dropped, c)
		}
	}
	return delivered, dropped
}

func (r *room) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.clients {
		delete(r.clients, c)
		c.closeSend()
	}
}
