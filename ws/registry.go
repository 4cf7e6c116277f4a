package ws

import "sync"

// Registry keeps track of the connected clients and the rooms they are subscribed to. A room is either a user id
// (the private room joined at setup) or a chat id.
type Registry struct {
	sync.RWMutex
	clients     map[string]*Client
	rooms       map[string]map[string]*Client
	memberships map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		clients:     make(map[string]*Client),
		rooms:       make(map[string]map[string]*Client),
		memberships: make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Register(c *Client) {
	r.Lock()
	defer r.Unlock()
	r.clients[c.Id] = c
	r.memberships[c.Id] = make(map[string]struct{})
}

// Unregister drops the client and all of its subscriptions and returns the rooms it was subscribed to.
func (r *Registry) Unregister(c *Client) []string {
	r.Lock()
	defer r.Unlock()
	rooms := make([]string, 0, len(r.memberships[c.Id]))
	for room := range r.memberships[c.Id] {
		rooms = append(rooms, room)
		delete(r.rooms[room], c.Id)
		if len(r.rooms[room]) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.memberships, c.Id)
	delete(r.clients, c.Id)
	return rooms
}

// Join subscribes the client to room. It returns false if the client already was subscribed or is not registered.
func (r *Registry) Join(c *Client, room string) bool {
	r.Lock()
	defer r.Unlock()
	joined, ok := r.memberships[c.Id]
	if !ok {
		return false
	}
	if _, ok := joined[room]; ok {
		return false
	}
	joined[room] = struct{}{}
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]*Client)
	}
	r.rooms[room][c.Id] = c
	return true
}

// Leave unsubscribes the client from room. It returns false if the client was not subscribed.
func (r *Registry) Leave(c *Client, room string) bool {
	r.Lock()
	defer r.Unlock()
	joined, ok := r.memberships[c.Id]
	if !ok {
		return false
	}
	if _, ok := joined[room]; !ok {
		return false
	}
	delete(joined, room)
	delete(r.rooms[room], c.Id)
	if len(r.rooms[room]) == 0 {
		delete(r.rooms, room)
	}
	return true
}

// Subscribers returns the clients subscribed to room, except the one with connection id exclude.
func (r *Registry) Subscribers(room, exclude string) []*Client {
	r.RLock()
	defer r.RUnlock()
	clients := make([]*Client, 0, len(r.rooms[room]))
	for id, c := range r.rooms[room] {
		if id == exclude {
			continue
		}
		clients = append(clients, c)
	}
	return clients
}

func (r *Registry) Rooms(connId string) []string {
	r.RLock()
	defer r.RUnlock()
	rooms := make([]string, 0, len(r.memberships[connId]))
	for room := range r.memberships[connId] {
		rooms = append(rooms, room)
	}
	return rooms
}

// Stats returns the number of connected clients and of rooms with at least one subscriber.
func (r *Registry) Stats() (int, int) {
	r.RLock()
	defer r.RUnlock()
	return len(r.clients), len(r.rooms)
}
