package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/myrjola/liftcycle/internal/errors"
	"github.com/myrjola/liftcycle/internal/ptr"
	"github.com/myrjola/liftcycle/internal/workout"
	"github.com/spf13/cobra"
)

var errNoUser = errors.NewSentinel("no user given, pass --user or set LIFTCYCLE_USER_ID")

func (app *application) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "liftcycle",
		Short:         "Generate 5/3/1 training cycles and track them set by set",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&app.userID, "user", app.userID, "id of the lifter")
	root.AddCommand(
		app.userCommand(),
		app.catalogCommand(),
		app.maxCommand(),
		app.cycleCommand(),
		app.dashboardCommand(),
		app.workoutCommand(),
		app.setCommand(),
		app.exerciseCommand(),
		app.exportCommand(),
	)
	return root
}

func (app *application) requireUser() (string, error) {
	if app.userID == "" {
		return "", errNoUser
	}
	return app.userID, nil
}

func (app *application) userCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage lifters"}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <display-name>",
		Short: "Register a lifter and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := app.service.CreateUser(cmd.Context(), args[0])
			if err != nil {
				return err //nolint:wrapcheck // run wraps.
			}
			_, _ = fmt.Fprintf(app.out, "created user %s\n", user.ID)
			return nil
		},
	})
	return cmd
}

func (app *application) catalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the exercise catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs, err := app.service.ListDefinitions(cmd.Context())
			if err != nil {
				return err //nolint:wrapcheck // run wraps.
			}
			printBoxedHeader(app.out, "CATALOG")
			for _, def := range defs {
				day := ""
				if def.PrimaryLiftDay != "" {
					day = " " + string(def.PrimaryLiftDay) + " day"
				}
				_, _ = fmt.Fprintf(app.out, "  %s %s%s %s\n", nameColor.Sprint(def.Name),
					labelColor.Sprint(string(def.Category)), day, faintColor.Sprint(def.ID))
			}
			return nil
		},
	}
}

// findDefinition resolves a definition by id or case-insensitive name.
func (app *application) findDefinition(cmd *cobra.Command, nameOrID string) (workout.ExerciseDefinition, error) {
	defs, err := app.service.ListDefinitions(cmd.Context())
	if err != nil {
		return workout.ExerciseDefinition{}, err //nolint:wrapcheck // run wraps.
	}
	for _, def := range defs {
		if def.ID == nameOrID || strings.EqualFold(def.Name, nameOrID) {
			return def, nil
		}
	}
	return workout.ExerciseDefinition{}, errors.Wrap(workout.ErrNotFound, "find exercise",
		slog.String("exercise", nameOrID))
}

func parseWeight(s string) (float64, error) {
	weight, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse weight", slog.String("weight", s))
	}
	return weight, nil
}

func (app *application) maxCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "max", Short: "Record and list one-rep maxes"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <exercise> <weight>",
			Short: "Record the one-rep max of an exercise",
			Args:  cobra.ExactArgs(2), //nolint:mnd // exercise and weight.
			RunE: func(cmd *cobra.Command, args []string) error {
				weight, err := parseWeight(args[1])
				if err != nil {
					return err
				}
				return app.recordMax(cmd, args[0], weight)
			},
		},
		&cobra.Command{
			Use:   "estimate <exercise> <weight> <reps>",
			Short: "Record a one-rep max estimated from a set of several reps",
			Args:  cobra.ExactArgs(3), //nolint:mnd // exercise, weight and reps.
			RunE: func(cmd *cobra.Command, args []string) error {
				weight, err := parseWeight(args[1])
				if err != nil {
					return err
				}
				reps, err := strconv.Atoi(args[2])
				if err != nil {
					return errors.Wrap(err, "parse reps", slog.String("reps", args[2]))
				}
				return app.recordMax(cmd, args[0], workout.EstimateOneRepMax(weight, reps))
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the recorded one-rep maxes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				userID, err := app.requireUser()
				if err != nil {
					return err
				}
				defs, err := app.service.ListDefinitions(cmd.Context())
				if err != nil {
					return err //nolint:wrapcheck // run wraps.
				}
				names := make(map[string]string, len(defs))
				for _, def := range defs {
					names[def.ID] = def.Name
				}
				maxes, err := app.service.ListOneRepMaxes(cmd.Context(), userID)
				if err != nil {
					return err //nolint:wrapcheck // run wraps.
				}
				printBoxedHeader(app.out, "ONE-REP MAXES")
				for _, m := range maxes {
					printMetric(app.out, names[m.DefinitionID], formatWeight(m.Weight))
				}
				return nil
			},
		},
	)
	return cmd
}

func (app *application) recordMax(cmd *cobra.Command, exercise string, weight float64) error {
	userID, err := app.requireUser()
	if err != nil {
		return err
	}
	def, err := app.findDefinition(cmd, exercise)
	if err != nil {
		return err
	}
	if err = app.service.InsertOneRepMax(cmd.Context(), userID, def.ID, weight); err != nil {
		return err //nolint:wrapcheck // run wraps.
	}
	_, _ = fmt.Fprintf(app.out, "one-rep max of %s is %s\n", def.Name, formatWeight(weight))
	return nil
}

func (app *application) cycleCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "cycle", Short: "Create and end training cycles"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create",
			Short: "Generate a new cycle of sixteen workouts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				userID, err := app.requireUser()
				if err != nil {
					return err
				}
				cycle, err := app.service.CreateCycle(cmd.Context(), userID)
				if err != nil {
					return err //nolint:wrapcheck // run wraps.
				}
				_, _ = fmt.Fprintf(app.out, "created cycle %s starting %s\n", cycle.ID, cycle.StartDate.Format("2006-01-02"))
				return nil
			},
		},
		app.eventCommand("skip <cycle-id>", "Skip the remaining workouts and complete the cycle",
			"cycle completed", app.service.SkipRemainingInCycle),
	)
	return cmd
}

func (app *application) dashboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the current cycle and recently completed ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := app.requireUser()
			if err != nil {
				return err
			}
			data, err := app.service.GetTrainingData(cmd.Context(), userID)
			if err != nil {
				return err //nolint:wrapcheck // run wraps.
			}
			printDashboard(app.out, data)
			return nil
		},
	}
}

func (app *application) showWorkout(cmd *cobra.Command, workoutID string) error {
	detail, err := app.service.GetWorkout(cmd.Context(), workoutID)
	if err != nil {
		return err //nolint:wrapcheck // run wraps.
	}
	printWorkout(app.out, detail)
	return nil
}

// eventCommand builds a command applying event to the entity named by its single argument.
func (app *application) eventCommand(
	use, short, done string, event func(ctx context.Context, id string) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := event(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(app.out, done)
			return nil
		},
	}
}

func (app *application) workoutCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "workout", Short: "Show, start, skip and complete workouts"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show <workout-id>",
			Short: "Show a workout with its exercises and sets",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.showWorkout(cmd, args[0])
			},
		},
		app.eventCommand("start <workout-id>", "Start a pending workout", "workout started",
			app.service.StartWorkout),
		app.eventCommand("skip <workout-id>", "Skip the rest of a workout", "workout completed",
			app.service.SkipRemainingInWorkout),
		app.eventCommand("complete <workout-id>", "Complete a workout without recording sets", "workout completed",
			app.service.CompleteWorkout),
	)
	return cmd
}

func (app *application) setCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "set", Short: "Complete or skip the current set of a workout"}

	var (
		setID  string
		weight float64
		reps   int
		rpe    float64
	)
	complete := &cobra.Command{
		Use:   "complete <workout-id>",
		Short: "Record the current set and move on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			perf := workout.Performance{Weight: weight, Reps: nil, RPE: nil}
			if cmd.Flags().Changed("reps") {
				perf.Reps = ptr.Ref(reps)
			}
			if cmd.Flags().Changed("rpe") {
				perf.RPE = ptr.Ref(rpe)
			}
			if err := app.service.CompleteSet(cmd.Context(), setID, "", args[0], perf); err != nil {
				return err //nolint:wrapcheck // run wraps.
			}
			return app.showWorkout(cmd, args[0])
		},
	}
	complete.Flags().StringVar(&setID, "set", "", "id of the set, defaults to the current set")
	complete.Flags().Float64Var(&weight, "weight", 0, "weight lifted")
	complete.Flags().IntVar(&reps, "reps", 0, "reps performed, defaults to the prescription")
	complete.Flags().Float64Var(&rpe, "rpe", 0, "rate of perceived exertion from 1 to 10")
	_ = complete.MarkFlagRequired("weight")

	var skipSetID string
	skip := &cobra.Command{
		Use:   "skip <workout-id>",
		Short: "Skip the current set and move on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.service.SkipSet(cmd.Context(), args[0], skipSetID); err != nil {
				return err //nolint:wrapcheck // run wraps.
			}
			return app.showWorkout(cmd, args[0])
		},
	}
	skip.Flags().StringVar(&skipSetID, "set", "", "id of the set, defaults to the current set")

	cmd.AddCommand(complete, skip)
	return cmd
}

func (app *application) exerciseCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "exercise", Short: "Act on the current exercise of a workout"}
	cmd.AddCommand(app.eventCommand("skip <exercise-id>", "Skip the remaining sets of the current exercise",
		"exercise completed", app.service.SkipRemainingInExercise))
	return cmd
}

func (app *application) exportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Write your data into a standalone SQLite file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := app.requireUser()
			if err != nil {
				return err
			}
			path, err := app.service.ExportUser(cmd.Context(), userID, args[0])
			if err != nil {
				return err //nolint:wrapcheck // run wraps.
			}
			_, _ = fmt.Fprintf(app.out, "exported to %s\n", path)
			return nil
		},
	}
}
