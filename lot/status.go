package lot

// CanTransition reports whether a lot in status from may move to status to.
// Only a known, non-terminal status moves, and only into a terminal one.
func CanTransition(from, to Status) bool {
	if !from.Valid() || from.Terminal() {
		return false
	}
	return to.Terminal()
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

func (p PeriodType) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	default:
		return false
	}
}
