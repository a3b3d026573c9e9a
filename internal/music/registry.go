package music

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry maps guild IDs to their players. Players are created lazily on
// first use and live for the rest of the process; guild count is bounded
// by bot membership so there is no eviction.
type Registry struct {
	resolver Resolver
	log      *logrus.Logger

	// OnTrackStart, when assigned before the gateway opens, is invoked
	// once per started track.
	OnTrackStart func(guildID, title string)

	mu      sync.Mutex
	players map[string]*Player
}

func NewRegistry(resolver Resolver, log *logrus.Logger) *Registry {
	return &Registry{
		resolver: resolver,
		log:      log,
		players:  make(map[string]*Player),
	}
}

// GetOrCreate returns the guild's player, allocating a fresh idle one on
// first sight of the guild.
func (r *Registry) GetOrCreate(guildID string) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[guildID]; ok {
		return p
	}

	p := &Player{
		guildID:  guildID,
		resolver: r.resolver,
		log:      r.log.WithField("guild", guildID),
	}
	if hook := r.OnTrackStart; hook != nil {
		p.onTrackStart = func(title string) { hook(guildID, title) }
	}
	r.players[guildID] = p
	return p
}
