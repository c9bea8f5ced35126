package queryplan

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PlanStore persists synthesized query plans under a stack directory so a
// re-run reuses the stored plan instead of re-deriving it.
type PlanStore struct {
	dir string
}

// NewPlanStore creates a plan store rooted at dir.
func NewPlanStore(dir string) *PlanStore {
	return &PlanStore{dir: dir}
}

func (ps *PlanStore) planPath(contentType string) string {
	return filepath.Join(ps.dir, "queries", sanitizePlanName(contentType)+".json")
}

// sanitizePlanName keeps plan files inside the queries directory even when
// a content type name carries path separators or traversal sequences.
func sanitizePlanName(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('_')
		}
	}
	if builder.Len() == 0 {
		return "unnamed"
	}
	return builder.String()
}

// Save writes the plan for its content type, replacing any prior plan.
func (ps *PlanStore) Save(plan Plan) error {
	dir := filepath.Join(ps.dir, "queries")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create query plan directory: %w", err)
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal query plan for %s: %w", plan.ContentType, err)
	}
	if err := os.WriteFile(ps.planPath(plan.ContentType), data, 0o644); err != nil {
		return fmt.Errorf("write query plan for %s: %w", plan.ContentType, err)
	}
	return nil
}

// Load reads the stored plan for a content type. The boolean reports
// whether a plan was present.
func (ps *PlanStore) Load(contentType string) (Plan, bool, error) {
	data, err := os.ReadFile(ps.planPath(contentType))
	if errors.Is(err, os.ErrNotExist) {
		return Plan{}, false, nil
	}
	if err != nil {
		return Plan{}, false, fmt.Errorf("read query plan for %s: %w", contentType, err)
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return Plan{}, false, fmt.Errorf("decode query plan for %s: %w", contentType, err)
	}
	return plan, true, nil
}
