package device

import (
	"slices"

	"github.com/nerrad567/lumi-core/internal/ledger"
)

// Group is a named set of registered devices owned by its creator.
type Group struct {
	ID      uint64              `json:"id"`
	Name    string              `json:"name"`
	Owner   ledger.Identity     `json:"owner"`
	Members map[uint64]struct{} `json:"-"`
}

// GroupView is the read model returned by get-group. Members are listed in
// ascending order so the view is deterministic.
type GroupView struct {
	ID      uint64          `json:"id"`
	Name    string          `json:"name"`
	Owner   ledger.Identity `json:"owner"`
	Members []uint64        `json:"members"`
}

// MemberIDs returns the member device ids in ascending order.
func (g *Group) MemberIDs() []uint64 {
	ids := make([]uint64, 0, len(g.Members))
	for id := range g.Members {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// View returns the public read model of the group.
func (g *Group) View() GroupView {
	return GroupView{
		ID:      g.ID,
		Name:    g.Name,
		Owner:   g.Owner,
		Members: g.MemberIDs(),
	}
}

// DeepCopy creates an independent copy of the group including its member set.
func (g *Group) DeepCopy() *Group {
	if g == nil {
		return nil
	}
	cpy := *g
	cpy.Members = make(map[uint64]struct{}, len(g.Members))
	for id := range g.Members {
		cpy.Members[id] = struct{}{}
	}
	return &cpy
}
