package workout

import "fmt"

// Slot is one percentage based set of a main lift.
type Slot struct {
	Reps            int
	PercentageOfMax float64
}

// WeeksPerCycle is the length of the periodization wave.
const WeeksPerCycle = 4

// PrimaryRPE is the effort target written on every percentage based set.
const PrimaryRPE = 7.0

// PeriodizationTable holds the sets of the main lift for each week of the wave.
type PeriodizationTable [WeeksPerCycle][]Slot

// DefaultPeriodization is a 5/3/1 wave. Every week opens with the same three warm-up sets; the deload week
// stays light for all six sets.
//
//nolint:gochecknoglobals,mnd // constant table.
var DefaultPeriodization = PeriodizationTable{
	{{5, 40}, {5, 50}, {3, 60}, {5, 65}, {5, 75}, {5, 85}},
	{{5, 40}, {5, 50}, {3, 60}, {3, 70}, {3, 80}, {3, 90}},
	{{5, 40}, {5, 50}, {3, 60}, {5, 75}, {3, 85}, {1, 95}},
	{{5, 40}, {5, 50}, {5, 60}, {5, 50}, {5, 50}, {5, 50}},
}

// Week returns the slots of 1-based week.
func (t PeriodizationTable) Week(week int) ([]Slot, error) {
	if week < 1 || week > WeeksPerCycle {
		return nil, fmt.Errorf("week %d outside 1-%d", week, WeeksPerCycle)
	}
	return t[week-1], nil
}

// Validate checks that every week prescribes at least one set with positive reps and percentage.
func (t PeriodizationTable) Validate() error {
	for i, slots := range t {
		if len(slots) == 0 {
			return fmt.Errorf("week %d has no sets", i+1)
		}
		for j, slot := range slots {
			if slot.Reps <= 0 || slot.PercentageOfMax <= 0 {
				return fmt.Errorf("week %d set %d: reps and percentage must be positive", i+1, j+1)
			}
		}
	}
	return nil
}

// WeekNumber maps the 0-based index of a workout in its cycle to its 1-based week. Four workouts make a week
// and the wave repeats after four weeks.
func WeekNumber(workoutIndex int) int {
	return (workoutIndex/len(LiftRotation))%WeeksPerCycle + 1
}
