package main

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/myrjola/liftcycle/internal/workout"
)

const headerWidth = 44

//nolint:gochecknoglobals // colour palette.
var (
	headerColor = color.New(color.FgCyan, color.Bold)
	labelColor  = color.New(color.FgYellow, color.Bold)
	nameColor   = color.New(color.FgMagenta, color.Bold)
	faintColor  = color.New(color.Faint)
)

func printBoxedHeader(w io.Writer, title string) {
	border := strings.Repeat("═", headerWidth)
	padding := max(headerWidth-utf8.RuneCountInString(title), 0)
	left := padding / 2
	_, _ = headerColor.Fprintln(w, "╔"+border+"╗")
	_, _ = headerColor.Fprintln(w, "║"+strings.Repeat(" ", left)+title+strings.Repeat(" ", padding-left)+"║")
	_, _ = headerColor.Fprintln(w, "╚"+border+"╝")
}

func printMetric(w io.Writer, label string, value any) {
	_, _ = fmt.Fprintf(w, "  %s: %v\n", labelColor.Sprint(label), value)
}

func statusColor(s workout.Status) *color.Color {
	switch s {
	case workout.StatusInProgress:
		return color.New(color.FgCyan, color.Bold)
	case workout.StatusCompleted:
		return color.New(color.FgGreen)
	case workout.StatusSkipped:
		return color.New(color.FgRed)
	case workout.StatusPending:
		return faintColor
	}
	return faintColor
}

func formatStatus(s workout.Status) string {
	return statusColor(s).Sprint(strings.ReplaceAll(string(s), "_", " "))
}

func formatWeight(weight float64) string {
	return fmt.Sprintf("%g", weight)
}

func printWorkout(w io.Writer, detail workout.WorkoutDetail) {
	printBoxedHeader(w, fmt.Sprintf("WORKOUT %d · %s · WEEK %d",
		detail.Sequence, strings.ToUpper(string(detail.PrimaryLift)), detail.Week))
	printMetric(w, "ID", detail.ID)
	printMetric(w, "Status", formatStatus(detail.Status))
	printMetric(w, "Scheduled", detail.ScheduledDate.Format("Mon 2 Jan 2006"))
	_, _ = fmt.Fprintln(w)
	for _, ex := range detail.Exercises {
		marker := " "
		if ex.ID == detail.CurrentExerciseID {
			marker = "▶"
		}
		_, _ = fmt.Fprintf(w, "%s %d. %s [%s] %s\n", marker, ex.Order, nameColor.Sprint(ex.Definition.Name),
			formatStatus(ex.Status), faintColor.Sprint(ex.ID))
		for _, s := range ex.Sets {
			printSet(w, s, s.ID == detail.CurrentSetID)
		}
	}
}

func printSet(w io.Writer, s workout.Set, current bool) {
	var b strings.Builder
	if current {
		b.WriteString("    ▶ ")
	} else {
		b.WriteString("      ")
	}
	fmt.Fprintf(&b, "set %d: %d × %s", s.SetNumber, s.Reps, formatWeight(s.Weight))
	if s.PercentageOfMax != nil {
		fmt.Fprintf(&b, " (%g%%)", *s.PercentageOfMax)
	}
	if s.RPE != nil {
		fmt.Fprintf(&b, " @%g", *s.RPE)
	}
	if s.ActualWeight != nil && s.ActualReps != nil {
		fmt.Fprintf(&b, " → did %d × %s", *s.ActualReps, formatWeight(*s.ActualWeight))
		if s.ActualRPE != nil {
			fmt.Fprintf(&b, " @%g", *s.ActualRPE)
		}
	}
	fmt.Fprintf(&b, " [%s]", formatStatus(s.Status))
	_, _ = fmt.Fprintln(w, b.String())
}

func printDashboard(w io.Writer, data workout.TrainingData) {
	printBoxedHeader(w, "DASHBOARD")
	if !data.HasAllMaxes {
		_, _ = labelColor.Fprintln(w, "  Record a one-rep max for every main lift to get percentage based sets.")
	}
	if len(data.Cycles) == 0 {
		_, _ = fmt.Fprintln(w, "  No cycles yet. Create one with `liftcycle cycle create`.")
		return
	}
	for _, c := range data.Cycles {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintf(w, "%s %s [%s]\n", nameColor.Sprint("Cycle"), c.ID, formatStatus(c.Status))
		printMetric(w, "Started", c.StartDate.Format("2 Jan 2006"))
		printMetric(w, "Completed workouts", fmt.Sprintf("%d/%d", c.CompletedWorkouts, c.TotalWorkouts))
		printMetric(w, "Skipped workouts", c.SkippedWorkouts)
		if c.NextWorkout != nil {
			printMetric(w, "Next workout", fmt.Sprintf("%d %s %s", c.NextWorkout.Sequence, c.NextWorkout.PrimaryLift,
				c.NextWorkout.ID))
		}
		if c.Status == workout.StatusCompleted {
			continue
		}
		for _, wo := range data.Workouts {
			if wo.CycleID != c.ID {
				continue
			}
			_, _ = fmt.Fprintf(w, "    %2d %-8s %s %s %s\n", wo.Sequence, wo.PrimaryLift,
				wo.ScheduledDate.Format("2006-01-02"), formatStatus(wo.Status), faintColor.Sprint(wo.ID))
		}
	}
}
