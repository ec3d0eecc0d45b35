// Package tables holds the static progression reference data: the Level
// Table, the streak milestone list and the companion evolution curve. All of
// it is read-only after Load and safe to share without locking.
package tables

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"

	"engagement-engine/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultSeed []byte

type Set struct {
	Levels     *LevelTable
	Milestones *MilestoneTable
	Evolution  *EvolutionCurve
}

type yamlSeed struct {
	Levels     []yamlLevel     `yaml:"levels"`
	Milestones []yamlMilestone `yaml:"streak_milestones"`
	Companion  yamlCompanion   `yaml:"companion"`
}

type yamlLevel struct {
	Level          int      `yaml:"level"`
	PointsRequired int      `yaml:"points_required"`
	Name           string   `yaml:"name"`
	Color          string   `yaml:"color"`
	Benefits       []string `yaml:"benefits"`
}

type yamlMilestone struct {
	Day    int    `yaml:"day"`
	Reward string `yaml:"reward"`
}

type yamlCompanion struct {
	EvolutionCadence int      `yaml:"evolution_cadence"`
	ExperienceBase   int      `yaml:"experience_base"`
	Stages           []string `yaml:"stages"`
}

// Load reads the seed file at path, or the embedded default when path is empty.
func Load(path string) (*Set, error) {
	data := defaultSeed
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read tables file: %w", err)
		}
		data = b
	}
	return Parse(data)
}

func Parse(data []byte) (*Set, error) {
	var seed yamlSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse tables: %w", err)
	}

	defs := make([]domain.LevelDefinition, 0, len(seed.Levels))
	for _, l := range seed.Levels {
		def, err := domain.NewLevelDefinition(l.Level, l.PointsRequired, l.Name, l.Color, l.Benefits)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", l.Level, err)
		}
		defs = append(defs, def)
	}
	levels, err := NewLevelTable(defs)
	if err != nil {
		return nil, err
	}

	milestones := make([]Milestone, 0, len(seed.Milestones))
	for _, m := range seed.Milestones {
		milestones = append(milestones, Milestone{Day: m.Day, Reward: m.Reward})
	}
	ms, err := NewMilestoneTable(milestones)
	if err != nil {
		return nil, err
	}

	curve, err := NewEvolutionCurve(seed.Companion.EvolutionCadence, seed.Companion.ExperienceBase, seed.Companion.Stages)
	if err != nil {
		return nil, err
	}

	return &Set{Levels: levels, Milestones: ms, Evolution: curve}, nil
}

// LevelTable maps accumulated points to a level.
type LevelTable struct {
	levels []domain.LevelDefinition // ascending by Level and PointsRequired
}

func NewLevelTable(defs []domain.LevelDefinition) (*LevelTable, error) {
	sorted := append([]domain.LevelDefinition(nil), defs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.Level == prev.Level {
			return nil, domain.NewValidationError("level", fmt.Sprintf("duplicate level %d", cur.Level))
		}
		if cur.PointsRequired <= prev.PointsRequired {
			return nil, domain.NewValidationError("points_required",
				fmt.Sprintf("level %d requires %d points, not above level %d (%d)",
					cur.Level, cur.PointsRequired, prev.Level, prev.PointsRequired))
		}
	}
	return &LevelTable{levels: sorted}, nil
}

// LevelFor returns the highest level whose threshold is at most points. When no
// threshold qualifies (or the table is empty) the lowest defined level is used.
func (t *LevelTable) LevelFor(points int) int {
	if len(t.levels) == 0 {
		return 1
	}
	idx := sort.Search(len(t.levels), func(i int) bool {
		return t.levels[i].PointsRequired > points
	})
	if idx == 0 {
		return t.levels[0].Level
	}
	return t.levels[idx-1].Level
}

func (t *LevelTable) Lowest() int {
	if len(t.levels) == 0 {
		return 1
	}
	return t.levels[0].Level
}

func (t *LevelTable) Definition(level int) (domain.LevelDefinition, bool) {
	idx := sort.Search(len(t.levels), func(i int) bool { return t.levels[i].Level >= level })
	if idx < len(t.levels) && t.levels[idx].Level == level {
		return t.levels[idx], true
	}
	return domain.LevelDefinition{}, false
}

func (t *LevelTable) Name(level int) string {
	def, ok := t.Definition(level)
	if !ok {
		return ""
	}
	return def.Name
}

func (t *LevelTable) All() []domain.LevelDefinition {
	out := make([]domain.LevelDefinition, len(t.levels))
	copy(out, t.levels)
	return out
}

type Milestone struct {
	Day    int
	Reward string
}

type MilestoneTable struct {
	milestones []Milestone // strictly ascending by Day
}

func NewMilestoneTable(ms []Milestone) (*MilestoneTable, error) {
	for i, m := range ms {
		if m.Day < 1 {
			return nil, domain.NewValidationError("streak_milestones", fmt.Sprintf("day %d must be positive", m.Day))
		}
		if m.Reward == "" {
			return nil, domain.NewValidationError("streak_milestones", fmt.Sprintf("day %d has no reward", m.Day))
		}
		if i > 0 && m.Day <= ms[i-1].Day {
			return nil, domain.NewValidationError("streak_milestones", "days must be strictly ascending")
		}
	}
	return &MilestoneTable{milestones: append([]Milestone(nil), ms...)}, nil
}

func (t *MilestoneTable) RewardFor(day int) (string, bool) {
	idx := sort.Search(len(t.milestones), func(i int) bool { return t.milestones[i].Day >= day })
	if idx < len(t.milestones) && t.milestones[idx].Day == day {
		return t.milestones[idx].Reward, true
	}
	return "", false
}

func (t *MilestoneTable) All() []Milestone {
	return append([]Milestone(nil), t.milestones...)
}

// EvolutionCurve derives companion level from experience and evolution stage
// from level. Going from level L to L+1 costs base*L experience.
type EvolutionCurve struct {
	cadence int
	base    int
	stages  []string
}

func NewEvolutionCurve(cadence, base int, stages []string) (*EvolutionCurve, error) {
	if cadence == 0 {
		cadence = 5
	}
	if base == 0 {
		base = 100
	}
	if cadence < 2 {
		return nil, domain.NewValidationError("evolution_cadence", "must be at least 2")
	}
	if base < 1 {
		return nil, domain.NewValidationError("experience_base", "must be positive")
	}
	return &EvolutionCurve{cadence: cadence, base: base, stages: append([]string(nil), stages...)}, nil
}

func (c *EvolutionCurve) Cadence() int { return c.cadence }

// ExperienceForLevel is the cumulative experience needed to reach level,
// saturating at math.MaxInt.
func (c *EvolutionCurve) ExperienceForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	a, b := triangleFactors(level)
	if a > math.MaxInt/b {
		return math.MaxInt
	}
	steps := a * b
	if steps > math.MaxInt/c.base {
		return math.MaxInt
	}
	return c.base * steps
}

// LevelFor inverts ExperienceForLevel in closed form, then settles the
// float estimate with exact integer checks.
func (c *EvolutionCurve) LevelFor(experience int) int {
	if experience < c.base {
		return 1
	}
	level := int((1 + math.Sqrt(1+8*float64(experience)/float64(c.base))) / 2)
	if level < 1 {
		level = 1
	}
	for level > 1 && !c.reached(level, experience) {
		level--
	}
	for c.reached(level+1, experience) {
		level++
	}
	return level
}

// reached reports ExperienceForLevel(level) <= experience without
// multiplying: base*a*b <= x holds exactly when a <= (x/base)/b.
func (c *EvolutionCurve) reached(level, experience int) bool {
	if level <= 1 {
		return true
	}
	if experience < 0 {
		return false
	}
	a, b := triangleFactors(level)
	return a <= experience/c.base/b
}

// triangleFactors splits level*(level-1)/2 into two positive factors.
func triangleFactors(level int) (int, int) {
	a, b := level, level-1
	if a%2 == 0 {
		a /= 2
	} else {
		b /= 2
	}
	return a, b
}

// StageFor is the evolution stage a companion at level has earned.
func (c *EvolutionCurve) StageFor(level int) int {
	return level / c.cadence
}

// NextEvolutionLevel is the level at which the stage after stage unlocks.
func (c *EvolutionCurve) NextEvolutionLevel(stage int) int {
	return (stage + 1) * c.cadence
}

func (c *EvolutionCurve) StageName(stage int) string {
	if stage < 0 || stage >= len(c.stages) {
		return ""
	}
	return c.stages[stage]
}
