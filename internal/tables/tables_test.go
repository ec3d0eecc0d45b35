package tables

import (
	"errors"
	"math"
	"testing"
	"time"

	"engagement-engine/internal/domain"
)

func mustLevels(t *testing.T, defs ...domain.LevelDefinition) *LevelTable {
	t.Helper()
	lt, err := NewLevelTable(defs)
	if err != nil {
		t.Fatalf("NewLevelTable() error = %v", err)
	}
	return lt
}

func TestLoadDefault(t *testing.T) {
	set, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := set.Levels.LevelFor(0); got != 1 {
		t.Errorf("LevelFor(0) = %d, want 1", got)
	}
	if got := set.Levels.LevelFor(150); got != 2 {
		t.Errorf("LevelFor(150) = %d, want 2", got)
	}
	if reward, ok := set.Milestones.RewardFor(7); !ok || reward == "" {
		t.Errorf("RewardFor(7) = %q, %v", reward, ok)
	}
	if set.Evolution.Cadence() != 5 {
		t.Errorf("Cadence() = %d, want 5", set.Evolution.Cadence())
	}
}

func TestLevelFor(t *testing.T) {
	lt := mustLevels(t,
		domain.LevelDefinition{Level: 3, PointsRequired: 300, Name: "C"},
		domain.LevelDefinition{Level: 1, PointsRequired: 0, Name: "A"},
		domain.LevelDefinition{Level: 2, PointsRequired: 100, Name: "B"},
	)

	tests := []struct {
		points int
		want   int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{299, 2},
		{300, 3},
		{1_000_000, 3},
	}
	for _, tt := range tests {
		if got := lt.LevelFor(tt.points); got != tt.want {
			t.Errorf("LevelFor(%d) = %d, want %d", tt.points, got, tt.want)
		}
	}
}

func TestLevelForWithoutZeroThreshold(t *testing.T) {
	lt := mustLevels(t,
		domain.LevelDefinition{Level: 2, PointsRequired: 50, Name: "B"},
		domain.LevelDefinition{Level: 3, PointsRequired: 80, Name: "C"},
	)
	if got := lt.LevelFor(0); got != 2 {
		t.Errorf("LevelFor(0) = %d, want lowest level 2", got)
	}

	empty := mustLevels(t)
	if got := empty.LevelFor(500); got != 1 {
		t.Errorf("empty LevelFor(500) = %d, want 1", got)
	}
}

func TestNewLevelTableRejectsNonIncreasing(t *testing.T) {
	_, err := NewLevelTable([]domain.LevelDefinition{
		{Level: 1, PointsRequired: 0, Name: "A"},
		{Level: 2, PointsRequired: 100, Name: "B"},
		{Level: 3, PointsRequired: 100, Name: "C"},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("NewLevelTable() error = %v, want ErrValidation", err)
	}

	_, err = NewLevelTable([]domain.LevelDefinition{
		{Level: 1, PointsRequired: 0, Name: "A"},
		{Level: 1, PointsRequired: 10, Name: "B"},
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("NewLevelTable(duplicate) error = %v, want ErrValidation", err)
	}
}

func TestMilestoneTable(t *testing.T) {
	if _, err := NewMilestoneTable([]Milestone{{Day: 7, Reward: "a"}, {Day: 3, Reward: "b"}}); err == nil {
		t.Error("expected error for descending days")
	}
	if _, err := NewMilestoneTable([]Milestone{{Day: 3}}); err == nil {
		t.Error("expected error for missing reward")
	}

	mt, err := NewMilestoneTable([]Milestone{{Day: 3, Reward: "bronze"}, {Day: 7, Reward: "silver"}})
	if err != nil {
		t.Fatalf("NewMilestoneTable() error = %v", err)
	}
	if _, ok := mt.RewardFor(5); ok {
		t.Error("RewardFor(5) should not match")
	}
	if r, ok := mt.RewardFor(7); !ok || r != "silver" {
		t.Errorf("RewardFor(7) = %q, %v", r, ok)
	}
}

func TestEvolutionCurve(t *testing.T) {
	c, err := NewEvolutionCurve(5, 100, []string{"Egg", "Hatchling"})
	if err != nil {
		t.Fatalf("NewEvolutionCurve() error = %v", err)
	}

	levels := []struct {
		xp   int
		want int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{600, 4},
		{999, 4},
		{1500, 6},
	}
	for _, tt := range levels {
		if got := c.LevelFor(tt.xp); got != tt.want {
			t.Errorf("LevelFor(%d) = %d, want %d", tt.xp, got, tt.want)
		}
	}

	if got := c.StageFor(4); got != 0 {
		t.Errorf("StageFor(4) = %d, want 0", got)
	}
	if got := c.StageFor(6); got != 1 {
		t.Errorf("StageFor(6) = %d, want 1", got)
	}
	if got := c.NextEvolutionLevel(1); got != 10 {
		t.Errorf("NextEvolutionLevel(1) = %d, want 10", got)
	}
	if got := c.StageName(1); got != "Hatchling" {
		t.Errorf("StageName(1) = %q", got)
	}
	if got := c.StageName(9); got != "" {
		t.Errorf("StageName(9) = %q, want empty", got)
	}
}

func TestEvolutionCurveLevelForIsExact(t *testing.T) {
	for _, base := range []int{1, 7, 100} {
		c, err := NewEvolutionCurve(5, base, nil)
		if err != nil {
			t.Fatal(err)
		}
		level := 1
		for xp := 0; xp <= 50_000; xp++ {
			for c.ExperienceForLevel(level+1) <= xp {
				level++
			}
			if got := c.LevelFor(xp); got != level {
				t.Fatalf("base %d: LevelFor(%d) = %d, want %d", base, xp, got, level)
			}
		}
	}
}

func TestEvolutionCurveExtremeExperience(t *testing.T) {
	tests := []struct {
		base int
		xp   int
	}{
		{1, math.MaxInt},
		{100, math.MaxInt},
		{100, math.MaxInt - 1},
		{math.MaxInt, math.MaxInt},
		{3, 1 << 62},
	}
	for _, tt := range tests {
		c, err := NewEvolutionCurve(5, tt.base, nil)
		if err != nil {
			t.Fatal(err)
		}

		done := make(chan int, 1)
		go func() { done <- c.LevelFor(tt.xp) }()

		select {
		case level := <-done:
			if need := c.ExperienceForLevel(level); need > tt.xp {
				t.Errorf("base %d: LevelFor(%d) = %d needs %d experience", tt.base, tt.xp, level, need)
			}
			if next := c.ExperienceForLevel(level + 1); next <= tt.xp && next != math.MaxInt {
				t.Errorf("base %d: LevelFor(%d) = %d, but level %d is reachable", tt.base, tt.xp, level, level+1)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("base %d: LevelFor(%d) did not return", tt.base, tt.xp)
		}
	}
}

func TestExperienceForLevelSaturates(t *testing.T) {
	c, err := NewEvolutionCurve(5, 100, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.ExperienceForLevel(1 << 40); got != math.MaxInt {
		t.Errorf("ExperienceForLevel(2^40) = %d, want MaxInt", got)
	}
	if got := c.ExperienceForLevel(11); got != 5500 {
		t.Errorf("ExperienceForLevel(11) = %d, want 5500", got)
	}
}

func TestParseRejectsBadSeed(t *testing.T) {
	seed := []byte(`
levels:
  - level: 1
    points_required: 0
    name: A
  - level: 2
    points_required: 0
    name: B
`)
	if _, err := Parse(seed); err == nil {
		t.Error("Parse() expected error for non-increasing thresholds")
	}
	if _, err := Parse([]byte("levels: [")); err == nil {
		t.Error("Parse() expected YAML error")
	}
}
