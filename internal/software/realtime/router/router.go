// Package router implements the Room Router: group membership and fan-out.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"fleet-realtime/internal/domain/room"
	"fleet-realtime/internal/general/contracts"
	"fleet-realtime/internal/general/logger"
	"fleet-realtime/internal/ports"

	"golang.org/x/sync/errgroup"
)

const defaultOutboundBuffer = 1024

// Router owns group membership. One mutex guards both indexes so a
// connection's memberships change atomically and every member of a group
// observes broadcasts in the same order.
type Router struct {
	nodeID string
	logger *logger.Logger

	mu     sync.Mutex
	groups map[room.Group]map[string]ports.Subscriber
	joined map[string]map[room.Group]struct{}

	backplane ports.Backplane
	outbound  chan contracts.Broadcast
}

// Option configures a Router.
type Option func(*Router)

// WithBackplane relays every local broadcast to other processes.
func WithBackplane(bp ports.Backplane, buffer int) Option {
	return func(r *Router) {
		if bp == nil {
			return
		}
		if buffer <= 0 {
			buffer = defaultOutboundBuffer
		}
		r.backplane = bp
		r.outbound = make(chan contracts.Broadcast, buffer)
	}
}

func New(nodeID string, log *logger.Logger, opts ...Option) *Router {
	r := &Router{
		nodeID: nodeID,
		logger: log,
		groups: make(map[room.Group]map[string]ports.Subscriber),
		joined: make(map[string]map[room.Group]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) NodeID() string { return r.nodeID }

// Join adds sub to g. Joining twice is a no-op; added reports whether membership changed.
func (r *Router) Join(sub ports.Subscriber, g room.Group) (added bool, err error) {
	if err := g.Validate(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[g]
	if !ok {
		members = make(map[string]ports.Subscriber)
		r.groups[g] = members
	}
	if _, ok := members[sub.ID()]; ok {
		return false, nil
	}
	members[sub.ID()] = sub

	mine, ok := r.joined[sub.ID()]
	if !ok {
		mine = make(map[room.Group]struct{})
		r.joined[sub.ID()] = mine
	}
	mine[g] = struct{}{}
	return true, nil
}

// Leave removes connID from g. Leaving a group you are not in is a no-op.
func (r *Router) Leave(connID string, g room.Group) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(connID, g)
}

func (r *Router) leaveLocked(connID string, g room.Group) bool {
	members, ok := r.groups[g]
	if !ok {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.groups, g)
	}
	if mine, ok := r.joined[connID]; ok {
		delete(mine, g)
		if len(mine) == 0 {
			delete(r.joined, connID)
		}
	}
	return true
}

// LeaveAll drops every membership of connID in one step and returns the groups it left.
func (r *Router) LeaveAll(connID string) []room.Group {
	r.mu.Lock()
	defer r.mu.Unlock()

	mine := r.joined[connID]
	left := make([]room.Group, 0, len(mine))
	for g := range mine {
		members := r.groups[g]
		delete(members, connID)
		if len(members) == 0 {
			delete(r.groups, g)
		}
		left = append(left, g)
	}
	delete(r.joined, connID)
	return left
}

// IsMember reports whether connID belongs to g.
func (r *Router) IsMember(connID string, g room.Group) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.groups[g][connID]
	return ok
}

// Size is the number of local members of g.
func (r *Router) Size(g room.Group) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups[g])
}

// GroupsOf lists the groups connID belongs to, sorted by wire name.
func (r *Router) GroupsOf(connID string) []room.Group {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]room.Group, 0, len(r.joined[connID]))
	for g := range r.joined[connID] {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// GroupSizes maps every non-empty group's wire name to its local member count.
func (r *Router) GroupSizes() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int, len(r.groups))
	for g, members := range r.groups {
		out[g.String()] = len(members)
	}
	return out
}

// Broadcast encodes the frame once and hands it to every local member of g,
// then queues it for the backplane. It never blocks on a slow member and
// returns the number of local members that accepted the frame. A group with
// no members is not an error.
func (r *Router) Broadcast(ctx context.Context, g room.Group, event string, data any) (int, error) {
	frame, err := json.Marshal(contracts.OutboundFrame{Type: event, Data: data})
	if err != nil {
		return 0, fmt.Errorf("encode %s frame: %w", event, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := r.deliverLocked(ctx, g, frame)

	if r.outbound != nil {
		b := contracts.Broadcast{
			Origin: r.nodeID,
			Kind:   string(g.Kind),
			ID:     g.ID,
			Group:  g.String(),
			Frame:  frame,
			SentAt: time.Now().UTC(),
		}
		select {
		case r.outbound <- b:
		default:
			r.logger.Warn(ctx, "backplane_queue_full", "Dropped broadcast for other nodes", map[string]any{
				"group": g.String(), "event": event,
			})
		}
	}
	return delivered, nil
}

func (r *Router) deliverLocked(ctx context.Context, g room.Group, frame []byte) int {
	delivered := 0
	for id, sub := range r.groups[g] {
		if sub.Deliver(frame) {
			delivered++
			continue
		}
		r.logger.Warn(ctx, "frame_dropped", "Member send buffer full or closed", map[string]any{
			"group": g.String(), "conn_id": id,
		})
	}
	return delivered
}

// Run pumps broadcasts to and from the backplane until ctx ends.
// Without a backplane it returns immediately.
func (r *Router) Run(ctx context.Context) error {
	if r.backplane == nil {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case b := <-r.outbound:
				if err := r.backplane.Publish(ctx, b); err != nil {
					r.logger.Error(ctx, "backplane_publish_failed", "Failed to relay broadcast", err, map[string]any{
						"group": b.Group,
					})
				}
			}
		}
	})

	g.Go(func() error {
		err := r.backplane.Subscribe(ctx, r.deliverRemote)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	return g.Wait()
}

// deliverRemote hands a frame from another node to local members only.
func (r *Router) deliverRemote(ctx context.Context, b contracts.Broadcast) {
	if b.Origin == r.nodeID {
		return
	}
	g, err := remoteGroup(b)
	if err != nil {
		r.logger.Warn(ctx, "backplane_bad_group", "Ignoring broadcast for unknown group", map[string]any{
			"group": b.Group, "origin": b.Origin,
		})
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliverLocked(ctx, g, b.Frame)
}

// remoteGroup prefers the typed kind; the wire name is ambiguous for
// notification feeds whose user id equals a role name.
func remoteGroup(b contracts.Broadcast) (room.Group, error) {
	if b.Kind == "" {
		return room.Parse(b.Group)
	}
	g := room.Group{Kind: room.Kind(b.Kind), ID: b.ID}
	if err := g.Validate(); err != nil {
		return room.Group{}, err
	}
	return g, nil
}
