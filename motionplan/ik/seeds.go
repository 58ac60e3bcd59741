package ik

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/robosim/armcore/referenceframe"
)

// SeedFamily groups seeds by the workspace region they start in.
type SeedFamily string

// Seed families.
const (
	FamilyFarLow     SeedFamily = "far-low"
	FamilyFar        SeedFamily = "far"
	FamilyMid        SeedFamily = "mid"
	FamilyHorizontal SeedFamily = "horizontal"
	FamilyCompact    SeedFamily = "compact"
	FamilyOverhead   SeedFamily = "overhead"
)

// Seed is a starting pose for shoulder, elbow and wrist in degrees. The base angle comes from the
// base candidates and wrist roll is never searched.
type Seed struct {
	Name     string     `json:"name"`
	Family   SeedFamily `json:"family"`
	Shoulder float64    `json:"shoulder"`
	Elbow    float64    `json:"elbow"`
	Wrist    float64    `json:"wrist"`
}

// Joints returns the seed as a configuration with the given base angle.
func (s Seed) Joints(base float64) referenceframe.JointAngles {
	return referenceframe.JointAngles{Base: base, Shoulder: s.Shoulder, Elbow: s.Elbow, Wrist: s.Wrist}
}

// SeedLibrary supplies the starting poses the solver iterates over.
type SeedLibrary interface {
	Seeds() []Seed
}

// StaticSeedLibrary is a fixed list of seeds.
type StaticSeedLibrary []Seed

// Seeds returns the list.
func (l StaticSeedLibrary) Seeds() []Seed {
	return l
}

// Family returns the seeds of one family.
func (l StaticSeedLibrary) Family(family SeedFamily) StaticSeedLibrary {
	return lo.Filter(l, func(s Seed, _ int) bool { return s.Family == family })
}

// Validate checks names are unique and every seed lies within limits.
func (l StaticSeedLibrary) Validate(limits referenceframe.JointLimits) error {
	if len(l) == 0 {
		return errors.New("seed library is empty")
	}
	seen := map[string]bool{}
	for _, s := range l {
		if seen[s.Name] {
			return errors.Errorf("duplicate seed %q", s.Name)
		}
		seen[s.Name] = true
		if err := limits.Check(s.Joints(0)); err != nil {
			return errors.Wrapf(err, "seed %q", s.Name)
		}
	}
	return nil
}

// DefaultSeeds covers the SO-101 workspace. Negative wrist pitches the jaw down, so low and far
// reaches start with a negative wrist; horizontal seeds keep |wrist| small for side grasps; compact
// seeds fold the arm over the base for close targets.
var DefaultSeeds = StaticSeedLibrary{
	{Name: "farLowReach", Family: FamilyFarLow, Shoulder: 60, Elbow: -40, Wrist: -60},
	{Name: "farLowDeep", Family: FamilyFarLow, Shoulder: 70, Elbow: -30, Wrist: -75},
	{Name: "farLowShallow", Family: FamilyFarLow, Shoulder: 50, Elbow: -50, Wrist: -40},
	{Name: "farFloorSweep", Family: FamilyFarLow, Shoulder: 80, Elbow: -60, Wrist: -70},
	{Name: "farMidReach", Family: FamilyFar, Shoulder: 40, Elbow: -50, Wrist: -30},
	{Name: "farExtended", Family: FamilyFar, Shoulder: 30, Elbow: -60, Wrist: -20},
	{Name: "farHighReach", Family: FamilyFar, Shoulder: 10, Elbow: -60, Wrist: -10},
	{Name: "farLevel", Family: FamilyFar, Shoulder: 20, Elbow: -40, Wrist: -40},

	{Name: "midLowReach", Family: FamilyMid, Shoulder: 60, Elbow: 0, Wrist: -70},
	{Name: "midLowTucked", Family: FamilyMid, Shoulder: 70, Elbow: 10, Wrist: -80},
	{Name: "midFloor", Family: FamilyMid, Shoulder: 80, Elbow: -20, Wrist: -85},
	{Name: "midReach", Family: FamilyMid, Shoulder: 40, Elbow: 0, Wrist: -50},
	{Name: "midLevel", Family: FamilyMid, Shoulder: 30, Elbow: 10, Wrist: -60},
	{Name: "midHigh", Family: FamilyMid, Shoulder: 0, Elbow: -20, Wrist: -30},
	{Name: "midHighTucked", Family: FamilyMid, Shoulder: -10, Elbow: 0, Wrist: -40},

	{Name: "horizontalLow", Family: FamilyHorizontal, Shoulder: 70, Elbow: -50, Wrist: -10},
	{Name: "horizontalMid", Family: FamilyHorizontal, Shoulder: 45, Elbow: -50, Wrist: 0},
	{Name: "horizontalHigh", Family: FamilyHorizontal, Shoulder: 20, Elbow: -55, Wrist: 10},
	{Name: "horizontalFar", Family: FamilyHorizontal, Shoulder: 55, Elbow: -70, Wrist: -5},
	{Name: "horizontalNear", Family: FamilyHorizontal, Shoulder: 60, Elbow: -20, Wrist: 15},
	{Name: "sideReachLow", Family: FamilyHorizontal, Shoulder: 80, Elbow: -70, Wrist: -5},
	{Name: "sideReachMid", Family: FamilyHorizontal, Shoulder: 35, Elbow: -35, Wrist: 5},
	{Name: "sideReachHigh", Family: FamilyHorizontal, Shoulder: 0, Elbow: -45, Wrist: 15},
	{Name: "sideTilted", Family: FamilyHorizontal, Shoulder: 50, Elbow: -35, Wrist: -20},

	{Name: "compactLow", Family: FamilyCompact, Shoulder: 80, Elbow: 30, Wrist: -90},
	{Name: "compactMid", Family: FamilyCompact, Shoulder: 50, Elbow: 40, Wrist: -90},
	{Name: "compactHigh", Family: FamilyCompact, Shoulder: 20, Elbow: 50, Wrist: -85},
	{Name: "compactFolded", Family: FamilyCompact, Shoulder: 90, Elbow: 60, Wrist: -90},
	{Name: "compactUpright", Family: FamilyCompact, Shoulder: -20, Elbow: 40, Wrist: -60},
	{Name: "compactNear", Family: FamilyCompact, Shoulder: 60, Elbow: 60, Wrist: -80},

	{Name: "overheadMid", Family: FamilyOverhead, Shoulder: -30, Elbow: -20, Wrist: -20},
	{Name: "overheadCompact", Family: FamilyOverhead, Shoulder: -50, Elbow: 20, Wrist: -40},
	{Name: "reachBack", Family: FamilyOverhead, Shoulder: -70, Elbow: -30, Wrist: -30},
	{Name: "reachUp", Family: FamilyOverhead, Shoulder: -40, Elbow: -60, Wrist: 10},
	{Name: "homeRest", Family: FamilyOverhead, Shoulder: 0, Elbow: 0, Wrist: 0},
}
