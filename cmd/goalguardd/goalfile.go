package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/goalguard/internal/orchestrator"
)

// GoalFile is the YAML document listing the goals to execute.
type GoalFile struct {
	Goals []GoalEntry `yaml:"goals"`
}

// GoalEntry is one goal submission.
type GoalEntry struct {
	Goal           string `yaml:"goal"`
	RiskPreference string `yaml:"risk_preference"`
	DataRef        string `yaml:"data_ref"`
}

// Request maps the entry onto an orchestrator request.
func (g GoalEntry) Request() orchestrator.Request {
	return orchestrator.Request{
		Goal:           g.Goal,
		RiskPreference: g.RiskPreference,
		DataRef:        g.DataRef,
	}
}

// loadGoalFile reads and validates a goal file.
func loadGoalFile(path string) (*GoalFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read goal file: %w", err)
	}

	var gf GoalFile
	if err := yaml.Unmarshal(content, &gf); err != nil {
		return nil, fmt.Errorf("parse goal file %s: %w", path, err)
	}

	if len(gf.Goals) == 0 {
		return nil, fmt.Errorf("goal file %s lists no goals", path)
	}
	for i, g := range gf.Goals {
		if g.Goal == "" {
			return nil, fmt.Errorf("goal file %s: entry %d has no goal text", path, i)
		}
		if g.DataRef == "" {
			return nil, fmt.Errorf("goal file %s: entry %d (%q) has no data_ref", path, i, g.Goal)
		}
	}
	return &gf, nil
}
