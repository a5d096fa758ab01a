package player

import "sync"

// Manager is the per-room player registry. Entries are created on first
// access and live for the process lifetime; Remove exists for explicit
// administrative cleanup only.
type Manager struct {
	mu       sync.RWMutex
	players  map[string]*Player
	rooms    Joiner
	factory  SourceFactory
	notifier Notifier
	opts     Options
}

// NewManager creates an empty registry whose players share the given
// collaborators and options.
func NewManager(rooms Joiner, factory SourceFactory, notifier Notifier, opts Options) *Manager {
	return &Manager{
		players:  make(map[string]*Player),
		rooms:    rooms,
		factory:  factory,
		notifier: notifier,
		opts:     opts,
	}
}

// GetOrCreate returns the player for roomName, creating an idle one on first
// reference. Never fails.
func (m *Manager) GetOrCreate(roomName string) *Player {
	m.mu.RLock()
	p, ok := m.players[roomName]
	m.mu.RUnlock()
	if ok {
		return p
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.players[roomName]; ok {
		return p
	}
	p = NewPlayer(roomName, m.rooms, m.factory, m.notifier, m.opts)
	m.players[roomName] = p
	return p
}

// Remove stops and drops the player for roomName, if any.
func (m *Manager) Remove(roomName string) {
	m.mu.Lock()
	p, ok := m.players[roomName]
	delete(m.players, roomName)
	m.mu.Unlock()
	if ok {
		p.Stop()
	}
}
