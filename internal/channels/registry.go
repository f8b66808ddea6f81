// Package channels implements the channel registry (spec §3, §4.3): the
// map from channel name to its member connections, plus the reverse index
// needed to clean up a connection's memberships on close.
package channels

import (
	"sort"
	"sync"
)

// Member is the minimal view of a connection the registry needs. The
// connection package's *connection.Connection satisfies this.
type Member interface {
	ID() string
}

// Registry is a thread-safe channel → member-set index with its reverse
// index (member → channel-set). Joining an unknown channel creates it;
// dropping a channel's last member deletes the channel entry atomically
// with the member removal (spec invariant: "a channel entry exists iff its
// member set is non-empty").
type Registry struct {
	mu       sync.RWMutex
	channels map[string]map[string]Member // channel -> memberID -> Member
	memberOf map[string]map[string]bool   // memberID -> set of channel names
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		channels: make(map[string]map[string]Member),
		memberOf: make(map[string]map[string]bool),
	}
}

// Join adds member to channel, creating the channel lazily. Joining a
// channel a member already belongs to is a no-op (spec §8 idempotence).
func (r *Registry) Join(channel string, member Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.channels[channel]
	if !ok {
		members = make(map[string]Member)
		r.channels[channel] = members
	}
	members[member.ID()] = member

	set, ok := r.memberOf[member.ID()]
	if !ok {
		set = make(map[string]bool)
		r.memberOf[member.ID()] = set
	}
	set[channel] = true
}

// Leave removes member from channel. If this was the channel's last
// member, the channel entry is deleted in the same critical section.
func (r *Registry) Leave(channel string, memberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(channel, memberID)
}

func (r *Registry) leaveLocked(channel, memberID string) {
	if members, ok := r.channels[channel]; ok {
		delete(members, memberID)
		if len(members) == 0 {
			delete(r.channels, channel)
		}
	}
	if set, ok := r.memberOf[memberID]; ok {
		delete(set, channel)
		if len(set) == 0 {
			delete(r.memberOf, memberID)
		}
	}
}

// RemoveMember removes memberID from every channel it belongs to — the
// cleanup performed when a connection closes (spec §4.4, invariant 4).
func (r *Registry) RemoveMember(memberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.memberOf[memberID]
	if !ok {
		return
	}
	channelNames := make([]string, 0, len(set))
	for ch := range set {
		channelNames = append(channelNames, ch)
	}
	for _, ch := range channelNames {
		r.leaveLocked(ch, memberID)
	}
}

// IsMember reports whether memberID currently belongs to channel.
func (r *Registry) IsMember(channel, memberID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.channels[channel]
	if !ok {
		return false
	}
	return members[memberID] != nil
}

// Others returns every current member of channel except excludeID, for
// broadcast/forward fanout (spec §4.5: "every other member").
func (r *Registry) Others(channel, excludeID string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.channels[channel]
	if !ok {
		return nil
	}
	out := make([]Member, 0, len(members))
	for id, m := range members {
		if id != excludeID {
			out = append(out, m)
		}
	}
	return out
}

// ChannelCount describes one channel's membership breakdown, used by
// get_active_channels and connection_diagnostics.
type ChannelCount struct {
	Name            string
	Total           int
	ControllerCount int
	ExecutorCount   int
}

// Classifier reports a member's self-declared role, used only for the
// diagnostic breakdown — routing never gates on it (spec §9).
type Classifier interface {
	ClassifiedAs() (controller bool, executor bool)
}

// ActiveChannels returns the sorted list of channel names with their
// member counts (spec §4.6: "returns the sorted list of channel names and
// counts; never fails").
func (r *Registry) ActiveChannels() []ChannelCount {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ChannelCount, 0, len(r.channels))
	for name, members := range r.channels {
		cc := ChannelCount{Name: name, Total: len(members)}
		for _, m := range members {
			if cl, ok := m.(Classifier); ok {
				isController, isExecutor := cl.ClassifiedAs()
				if isController {
					cc.ControllerCount++
				}
				if isExecutor {
					cc.ExecutorCount++
				}
			}
		}
		out = append(out, cc)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of channels currently tracked.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
