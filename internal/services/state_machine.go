package services

import "github.com/souqly/backend/internal/models"

// Lifecycle is the closed set of states of one vertical and the moves allowed
// between them. Settles is the single status whose entry credits the payees.
type Lifecycle struct {
	Vertical    models.Vertical
	Initial     models.Status
	Settles     models.Status
	Transitions map[models.Status][]models.Status
}

var lifecycles = map[models.Vertical]Lifecycle{
	models.VerticalOrder: {
		Vertical: models.VerticalOrder,
		Initial:  models.StatusPending,
		Settles:  models.StatusCompleted,
		Transitions: map[models.Status][]models.Status{
			models.StatusPending:   {models.StatusConfirmed, models.StatusCancelled},
			models.StatusConfirmed: {models.StatusDelivered, models.StatusCancelled},
			models.StatusDelivered: {models.StatusCompleted, models.StatusCancelled},
		},
	},
	models.VerticalRide: {
		Vertical: models.VerticalRide,
		Initial:  models.StatusRequested,
		Settles:  models.StatusCompleted,
		Transitions: map[models.Status][]models.Status{
			models.StatusRequested: {models.StatusOngoing, models.StatusCancelled},
			models.StatusOngoing:   {models.StatusCompleted, models.StatusCancelled},
		},
	},
	models.VerticalFoodOrder: {
		Vertical: models.VerticalFoodOrder,
		Initial:  models.StatusPending,
		Settles:  models.StatusDelivered,
		Transitions: map[models.Status][]models.Status{
			models.StatusPending:   {models.StatusPreparing, models.StatusCancelled},
			models.StatusPreparing: {models.StatusDelivered, models.StatusCancelled},
		},
	},
	models.VerticalApartmentBooking: {
		Vertical: models.VerticalApartmentBooking,
		Initial:  models.StatusPending,
		Settles:  models.StatusCompleted,
		Transitions: map[models.Status][]models.Status{
			models.StatusPending:   {models.StatusConfirmed, models.StatusCancelled},
			models.StatusConfirmed: {models.StatusCompleted, models.StatusCancelled},
		},
	},
	models.VerticalServiceBooking: {
		Vertical: models.VerticalServiceBooking,
		Initial:  models.StatusPending,
		Settles:  models.StatusCompleted,
		Transitions: map[models.Status][]models.Status{
			models.StatusPending:   {models.StatusConfirmed, models.StatusCancelled},
			models.StatusConfirmed: {models.StatusCompleted, models.StatusCancelled},
		},
	},
}

// LifecycleFor returns the lifecycle of v.
func LifecycleFor(v models.Vertical) (Lifecycle, bool) {
	l, ok := lifecycles[v]
	return l, ok
}

// IsTerminal reports whether no move leaves s.
func (l Lifecycle) IsTerminal(s models.Status) bool {
	return len(l.Transitions[s]) == 0
}

// Knows reports whether s belongs to this lifecycle.
func (l Lifecycle) Knows(s models.Status) bool {
	if s == l.Initial || s == l.Settles || s == models.StatusCancelled {
		return true
	}
	if _, ok := l.Transitions[s]; ok {
		return true
	}
	for _, targets := range l.Transitions {
		for _, t := range targets {
			if t == s {
				return true
			}
		}
	}
	return false
}

func (l Lifecycle) CanTransition(from, to models.Status) bool {
	for _, allowed := range l.Transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Validate returns an *InvalidTransitionError when from -> to is not allowed.
func (l Lifecycle) Validate(id int64, from, to models.Status) error {
	if !l.CanTransition(from, to) {
		return &InvalidTransitionError{Vertical: l.Vertical, ID: id, From: from, To: to}
	}
	return nil
}
