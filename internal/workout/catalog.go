package workout

import (
	"bytes"
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"

	_ "embed"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// Category groups exercise definitions that can fill the same slot of a workout.
type Category string

const (
	CategoryMainLift                Category = "main_lift"
	CategoryMainLiftVariation       Category = "main_lift_variation"
	CategoryCompoundLeg             Category = "compound_leg"
	CategoryCompoundPush            Category = "compound_push"
	CategoryCompoundPull            Category = "compound_pull"
	CategoryQuadAccessory           Category = "quad_accessory"
	CategoryHamstringGluteAccessory Category = "hamstring_glute_accessory"
	CategoryCalfAccessory           Category = "calf_accessory"
	CategoryShoulderAccessory       Category = "shoulder_accessory"
	CategoryTricepsAccessory        Category = "triceps_accessory"
	CategoryBackAccessory           Category = "back_accessory"
	CategoryCoreAccessory           Category = "core_accessory"
)

//nolint:gochecknoglobals // constant table.
var liftSlots = map[Lift][]Category{
	LiftSquat: {
		CategoryMainLift, CategoryMainLiftVariation, CategoryCompoundLeg,
		CategoryQuadAccessory, CategoryHamstringGluteAccessory, CategoryCalfAccessory,
	},
	LiftBench: {
		CategoryMainLift, CategoryMainLiftVariation, CategoryCompoundPush,
		CategoryShoulderAccessory, CategoryTricepsAccessory, CategoryBackAccessory,
	},
	LiftDeadlift: {
		CategoryMainLift, CategoryMainLiftVariation, CategoryCompoundPull,
		CategoryHamstringGluteAccessory, CategoryBackAccessory, CategoryCoreAccessory,
	},
	LiftPress: {
		CategoryMainLift, CategoryMainLiftVariation, CategoryCompoundPush,
		CategoryShoulderAccessory, CategoryTricepsAccessory, CategoryCoreAccessory,
	},
}

// SlotsForPrimaryLift returns the ordered categories of a workout built around lift. The first slot is
// always the main lift itself.
func SlotsForPrimaryLift(lift Lift) []Category {
	return slices.Clone(liftSlots[lift])
}

// SelectionPolicy decides which definition fills a slot when several match.
type SelectionPolicy string

const (
	// SelectFirst picks the first candidate by name, which makes generation reproducible.
	SelectFirst SelectionPolicy = "first"
	// SelectRandom picks a uniformly random candidate for every slot.
	SelectRandom SelectionPolicy = "random"
)

func (p SelectionPolicy) Valid() bool {
	return p == SelectFirst || p == SelectRandom
}

// ResolveDefinition picks the definition for one slot of a workout built around lift.
//
// The main lift slot only matches definitions of that day. The other slots match on category alone, so a
// variation of another lift may end up on the day.
func ResolveDefinition(
	category Category, lift Lift, catalog []ExerciseDefinition, pick SelectionPolicy,
) (ExerciseDefinition, error) {
	var candidates []ExerciseDefinition
	for _, def := range catalog {
		if def.Category != category {
			continue
		}
		if category == CategoryMainLift && def.PrimaryLiftDay != lift {
			continue
		}
		candidates = append(candidates, def)
	}
	if len(candidates) == 0 {
		return ExerciseDefinition{}, fmt.Errorf("%w: category %s on %s day", ErrNoMatchingDefinition, category, lift)
	}
	if pick == SelectRandom {
		return candidates[rand.IntN(len(candidates))], nil //nolint:gosec // not security sensitive.
	}
	return slices.MinFunc(candidates, func(a, b ExerciseDefinition) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	}), nil
}

//go:embed catalog.toml
var defaultCatalog []byte

// catalogNamespace derives stable definition ids from names so that reseeding updates rows in place.
//
//nolint:gochecknoglobals // constant.
var catalogNamespace = uuid.MustParse("5d1c1b7e-2f0a-4e1c-9a57-6c1f4f0f3e21")

// DefinitionID returns the id a catalogue entry called name is stored under.
func DefinitionID(name string) string {
	return uuid.NewSHA1(catalogNamespace, []byte(name)).String()
}

type catalogFile struct {
	Exercises []catalogEntry `toml:"exercise"`
}

type catalogEntry struct {
	Name           string   `toml:"name"`
	Type           string   `toml:"type"`
	Category       string   `toml:"category"`
	PrimaryLiftDay string   `toml:"primary_lift_day"`
	RepMax         *int     `toml:"rep_max"`
	RPEMax         *float64 `toml:"rpe_max"`
	Description    string   `toml:"description"`
}

// DefaultCatalog returns the built-in exercise catalogue.
func DefaultCatalog() ([]ExerciseDefinition, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog decodes a TOML catalogue of [[exercise]] tables.
func ParseCatalog(data []byte) ([]ExerciseDefinition, error) {
	var file catalogFile
	meta, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&file)
	if err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown catalog keys: %v", undecoded)
	}

	known := make(map[Category]bool)
	for _, slots := range liftSlots {
		for _, c := range slots {
			known[c] = true
		}
	}
	seen := make(map[string]bool, len(file.Exercises))
	defs := make([]ExerciseDefinition, 0, len(file.Exercises))
	for i, e := range file.Exercises {
		def := ExerciseDefinition{
			ID:             DefinitionID(e.Name),
			Name:           e.Name,
			Type:           ExerciseType(e.Type),
			Category:       Category(e.Category),
			PrimaryLiftDay: Lift(e.PrimaryLiftDay),
			RepMax:         e.RepMax,
			RPEMax:         e.RPEMax,
			Description:    e.Description,
		}
		switch {
		case def.Name == "":
			err = fmt.Errorf("exercise %d has no name", i+1)
		case seen[def.Name]:
			err = fmt.Errorf("exercise %q listed twice", def.Name)
		case !def.Type.Valid():
			err = fmt.Errorf("exercise %q has unknown type %q", def.Name, def.Type)
		case !known[def.Category]:
			err = fmt.Errorf("exercise %q has unknown category %q", def.Name, def.Category)
		case def.PrimaryLiftDay != "" && !def.PrimaryLiftDay.Valid():
			err = fmt.Errorf("exercise %q has unknown primary lift day %q", def.Name, def.PrimaryLiftDay)
		case def.Category == CategoryMainLift && def.PrimaryLiftDay == "":
			err = fmt.Errorf("main lift %q needs a primary lift day", def.Name)
		case def.RepMax != nil && *def.RepMax <= 0:
			err = fmt.Errorf("exercise %q has non-positive rep_max", def.Name)
		case def.RPEMax != nil && (*def.RPEMax < 1 || *def.RPEMax > 10):
			err = fmt.Errorf("exercise %q has rpe_max outside 1-10", def.Name)
		}
		if err != nil {
			return nil, err
		}
		seen[def.Name] = true
		defs = append(defs, def)
	}
	return defs, nil
}
