package orders

import (
	"github.com/age-b2b/backoffice/internal/shared"
)

// Event is a request to move an order to another status.
type Event string

const (
	EventConfirmPayment Event = "confirm_payment"
	EventClientCancel   Event = "client_cancel"
	EventRequestCancel  Event = "request_cancel"
	EventCreateShipment Event = "create_shipment"
	EventApproveCancel  Event = "approve_cancel"
	EventRejectCancel   Event = "reject_cancel"
	EventMarkDelivered  Event = "mark_delivered"
	EventRequestReturn  Event = "request_return"
	EventApproveReturn  Event = "approve_return"
	EventRejectReturn   Event = "reject_return"
	EventDeleteShipment Event = "delete_shipment"
)

// Actor is the kind of principal allowed to fire an event.
type Actor string

const (
	ActorClient Actor = "client"
	ActorStaff  Actor = "staff"
)

// Effect is the stock side effect declared by a transition.
type Effect int

const (
	EffectNone Effect = iota
	EffectDeductStock
	EffectRestoreStock
)

// Transition is one row of the order state table.
type Transition struct {
	Event  Event
	From   []Status
	To     Status
	Actor  Actor
	Effect Effect
}

// Allows reports whether the transition may fire from status.
func (t Transition) Allows(from Status) bool {
	for _, s := range t.From {
		if s == from {
			return true
		}
	}
	return false
}

var transitionTable = []Transition{
	{Event: EventConfirmPayment, From: []Status{StatusPending}, To: StatusPreparing, Actor: ActorStaff},
	{Event: EventClientCancel, From: []Status{StatusPending}, To: StatusCancelled, Actor: ActorClient},
	{Event: EventRequestCancel, From: []Status{StatusPreparing}, To: StatusCancelRequested, Actor: ActorClient},
	{Event: EventCreateShipment, From: []Status{StatusPreparing}, To: StatusShipped, Actor: ActorStaff, Effect: EffectDeductStock},
	{Event: EventApproveCancel, From: []Status{StatusCancelRequested}, To: StatusCancelled, Actor: ActorStaff},
	{Event: EventRejectCancel, From: []Status{StatusCancelRequested}, To: StatusCancelRejected, Actor: ActorStaff},
	{Event: EventMarkDelivered, From: []Status{StatusShipped}, To: StatusDelivered, Actor: ActorStaff},
	{Event: EventRequestReturn, From: []Status{StatusShipped, StatusDelivered}, To: StatusReturnRequested, Actor: ActorClient},
	{Event: EventApproveReturn, From: []Status{StatusReturnRequested}, To: StatusReturned, Actor: ActorStaff, Effect: EffectRestoreStock},
	{Event: EventRejectReturn, From: []Status{StatusReturnRequested}, To: StatusReturnRejected, Actor: ActorStaff},
	{Event: EventDeleteShipment, From: []Status{StatusShipped}, To: StatusPreparing, Actor: ActorStaff, Effect: EffectRestoreStock},
}

var transitionsByEvent = func() map[Event]Transition {
	m := make(map[Event]Transition, len(transitionTable))
	for _, t := range transitionTable {
		m[t.Event] = t
	}
	return m
}()

// Transitions returns a copy of the state table.
func Transitions() []Transition {
	out := make([]Transition, len(transitionTable))
	copy(out, transitionTable)
	return out
}

// LookupTransition returns the table row for an event.
func LookupTransition(ev Event) (Transition, bool) {
	t, ok := transitionsByEvent[ev]
	return t, ok
}

// Next validates firing ev from the current status and returns the matching row.
func Next(current Status, ev Event) (Transition, error) {
	t, ok := transitionsByEvent[ev]
	if !ok {
		return Transition{}, shared.Errorf(shared.ErrInvalidInput, "unknown event %q", ev)
	}
	if t.Allows(current) {
		return t, nil
	}
	if ev == EventCreateShipment && (current == StatusShipped || current == StatusDelivered) {
		return Transition{}, shared.Errorf(shared.ErrDuplicateShipment, "order is already %s", current)
	}
	return Transition{}, shared.Errorf(shared.ErrInvalidStateTransition, "%s not allowed from %s", ev, current)
}

// AllowedEvents lists the events an actor may fire from status.
func AllowedEvents(current Status, actor Actor) []Event {
	var events []Event
	for _, t := range transitionTable {
		if t.Actor == actor && t.Allows(current) {
			events = append(events, t.Event)
		}
	}
	return events
}
