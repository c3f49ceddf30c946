package model

// All returns every persisted model, in migration order.
func All() []any {
	return []any{
		&BoardGameCategory{},
		&BoardGame{},
		&CalendarEvent{},
		&ClubState{},
		&RepeatingState{},
		&Reservation{},
		&ReservationItem{},
		&HistoryEvent{},
		&PushSubscription{},
	}
}
