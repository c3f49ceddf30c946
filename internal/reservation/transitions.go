package reservation

import (
	"fmt"
	"sort"
	"strings"

	"clubhouse-backend/internal/auth"
	"clubhouse-backend/internal/model"
)

// Action is an event applied to a reservation item.
type Action string

const (
	ActionAssign           Action = "assign"
	ActionHandOver         Action = "hand_over"
	ActionRequestExtension Action = "request_extension"
	ActionApproveExtension Action = "approve_extension"
	ActionRefuseExtension  Action = "refuse_extension"
	ActionReturn           Action = "return"
	ActionCancel           Action = "cancel"
	ActionExpire           Action = "expire"
)

// AllActions lists every action.
var AllActions = []Action{
	ActionAssign, ActionHandOver, ActionRequestExtension, ActionApproveExtension,
	ActionRefuseExtension, ActionReturn, ActionCancel, ActionExpire,
}

// Capability names who may fire an edge.
type Capability string

const (
	Manager        Capability = "manager"
	OwnerOrManager Capability = "owner|manager"
	System         Capability = "system"
)

// Allows reports whether actor may fire an edge with this capability on an
// item owned by owner.
func (c Capability) Allows(actor auth.Actor, owner string) bool {
	switch c {
	case Manager:
		return actor.IsManager()
	case OwnerOrManager:
		return actor.IsManager() || (actor.ID != "" && actor.ID == owner)
	case System:
		return actor.IsSystem()
	}
	return false
}

type edge struct {
	from   model.ItemState
	action Action
}

// Rule is the outcome of an edge.
type Rule struct {
	To  model.ItemState
	Who Capability
}

// transitions is the complete item state machine. Any (state, action) pair
// missing here is rejected with InvalidTransition.
var transitions = map[edge]Rule{
	{model.ItemNew, ActionAssign}:                          {To: model.ItemAssigned, Who: Manager},
	{model.ItemAssigned, ActionHandOver}:                   {To: model.ItemHandedOver, Who: Manager},
	{model.ItemHandedOver, ActionRequestExtension}:         {To: model.ItemExtensionRequested, Who: OwnerOrManager},
	{model.ItemExtensionRequested, ActionApproveExtension}: {To: model.ItemHandedOver, Who: Manager},
	{model.ItemExtensionRequested, ActionRefuseExtension}:  {To: model.ItemHandedOver, Who: Manager},
	{model.ItemHandedOver, ActionReturn}:                   {To: model.ItemDone, Who: Manager},
	{model.ItemExpired, ActionReturn}:                      {To: model.ItemDone, Who: Manager},
	{model.ItemNew, ActionCancel}:                          {To: model.ItemCancelled, Who: OwnerOrManager},
	{model.ItemAssigned, ActionCancel}:                     {To: model.ItemCancelled, Who: OwnerOrManager},
	{model.ItemHandedOver, ActionExpire}:                   {To: model.ItemExpired, Who: System},
}

// Lookup returns the rule for firing action in state from.
func Lookup(from model.ItemState, action Action) (Rule, bool) {
	r, ok := transitions[edge{from, action}]
	return r, ok
}

// RenderTable prints the state machine one edge per line, sorted.
func RenderTable() string {
	lines := make([]string, 0, len(transitions))
	for e, r := range transitions {
		lines = append(lines, fmt.Sprintf("%-19s --%s(%s)--> %s", e.from, e.action, r.Who, r.To))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n"
}
