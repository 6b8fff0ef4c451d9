package model

import "time"

// FarmWindow is the interval during which farm accrual runs. Only End drives
// scheduling.
type FarmWindow struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether no window is known.
func (w FarmWindow) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// Balance is the account status returned by the balance read.
type Balance struct {
	Available   string
	PlayPasses  int
	Farming     *FarmWindow
	FarmBalance string
	Timestamp   time.Time
}
