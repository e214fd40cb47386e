package plan

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/drorchestrator/backend-go/internal/domain"
)

// Parse decodes a plan document. JSON is tried for .json files, YAML
// otherwise (YAML being a superset of JSON).
func Parse(name string, data []byte) (*domain.RecoveryPlan, error) {
	var p domain.RecoveryPlan
	if strings.EqualFold(filepath.Ext(name), ".json") {
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidPlan, name, err)
		}
		return &p, nil
	}

	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidPlan, name, err)
	}
	return &p, nil
}

// LoadFile reads and parses one plan file
func LoadFile(path string) (*domain.RecoveryPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}
	return Parse(path, data)
}

// LoadDir registers every *.yaml, *.yml and *.json file in dir. It stops at
// the first invalid plan and returns the ids registered so far.
func LoadDir(reg *Registry, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plans dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	var ids []string
	for _, f := range files {
		p, err := LoadFile(f)
		if err != nil {
			return ids, err
		}
		stored, err := reg.Register(p)
		if err != nil {
			return ids, fmt.Errorf("register %s: %w", f, err)
		}
		ids = append(ids, stored.ID)
	}
	log.Printf("plan: loaded %d plans from %s", len(ids), dir)
	return ids, nil
}
