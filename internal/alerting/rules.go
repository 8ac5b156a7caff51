package alerting

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// rulesFile is the on-disk YAML shape of the rules file.
type rulesFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

// ruleSpec carries durations as strings so the file can say "60s" or "5m".
type ruleSpec struct {
	ID         string  `yaml:"rule_id"`
	Name       string  `yaml:"name"`
	MetricKey  string  `yaml:"metric_key"`
	Comparator string  `yaml:"comparator"`
	Threshold  float64 `yaml:"threshold"`
	Duration   string  `yaml:"duration"`
	Frequency  string  `yaml:"frequency"`
	Enabled    *bool   `yaml:"enabled"`
}

// LoadRules reads and validates an alert rules YAML file.
func LoadRules(path string) ([]models.AlertRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}

	rules := make([]models.AlertRule, 0, len(file.Rules))
	for i, spec := range file.Rules {
		rule, err := spec.toRule()
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, spec.ID, err)
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, spec.ID, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (s ruleSpec) toRule() (models.AlertRule, error) {
	rule := models.AlertRule{
		ID:         s.ID,
		Name:       s.Name,
		MetricKey:  s.MetricKey,
		Comparator: models.Comparator(s.Comparator),
		Threshold:  s.Threshold,
		Enabled:    true,
	}
	if s.Enabled != nil {
		rule.Enabled = *s.Enabled
	}

	var err error
	if s.Duration != "" {
		if rule.Duration, err = time.ParseDuration(s.Duration); err != nil {
			return rule, fmt.Errorf("%w: bad duration %q", models.ErrValidation, s.Duration)
		}
	}
	if s.Frequency != "" {
		if rule.Frequency, err = time.ParseDuration(s.Frequency); err != nil {
			return rule, fmt.Errorf("%w: bad frequency %q", models.ErrValidation, s.Frequency)
		}
	}
	return rule, nil
}

// WatchRules loads the rules file into the engine and reloads it whenever it
// changes on disk. A reload that fails to parse is logged and the previous
// rule set stays in effect. Blocks until the context is cancelled.
func WatchRules(ctx context.Context, path string, engine *Engine) error {
	rules, err := LoadRules(path)
	if err != nil {
		return err
	}
	if err := engine.SetRules(rules); err != nil {
		return err
	}
	log.Printf("[alerting] loaded %d rule(s) from %s", len(rules), path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating rules watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which breaks a
	// watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching rules directory: %w", err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			rules, err := LoadRules(path)
			if err != nil {
				log.Printf("[alerting] rules reload failed, keeping previous rules: %v", err)
				continue
			}
			if err := engine.SetRules(rules); err != nil {
				log.Printf("[alerting] rules reload rejected, keeping previous rules: %v", err)
				continue
			}
			log.Printf("[alerting] reloaded %d rule(s) from %s", len(rules), path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[alerting] rules watcher error: %v", err)
		}
	}
}
