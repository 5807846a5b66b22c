// Package triples provides the minimal triples-factory machinery the
// evaluation pipeline needs: ID-mapped triples, label vocabularies, TSV
// loading, and filter-set construction for filtered evaluation.
package triples

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/kgelab/kge-rank/internal/pkg/errors"
)

// Triple is an ID-mapped (head entity, relation, tail entity) fact.
type Triple struct {
	Head     int64
	Relation int64
	Tail     int64
}

// LabeledTriple is a triple of raw labels, before ID mapping.
type LabeledTriple struct {
	Head     string
	Relation string
	Tail     string
}

// Factory holds a set of ID-mapped triples together with the entity and
// relation vocabularies they are mapped against.
type Factory struct {
	triples        []Triple
	numEntities    int64
	numRelations   int64
	entityToID     map[string]int64
	relationToID   map[string]int64
	entityLabels   []string
	relationLabels []string
}

// NewFactory creates a factory from already ID-mapped triples. The entity
// and relation counts bound the valid ID ranges.
func NewFactory(ts []Triple, numEntities, numRelations int64) (*Factory, error) {
	for _, t := range ts {
		if t.Head < 0 || t.Head >= numEntities || t.Tail < 0 || t.Tail >= numEntities {
			return nil, errors.ValidationError(fmt.Sprintf("entity ID out of range in triple %+v", t))
		}
		if t.Relation < 0 || t.Relation >= numRelations {
			return nil, errors.ValidationError(fmt.Sprintf("relation ID out of range in triple %+v", t))
		}
	}
	return &Factory{
		triples:      ts,
		numEntities:  numEntities,
		numRelations: numRelations,
	}, nil
}

// FromLabeled creates a factory from labeled triples, assigning entity and
// relation IDs by sorted label order so mappings are deterministic.
func FromLabeled(labeled []LabeledTriple) *Factory {
	entitySet := make(map[string]struct{})
	relationSet := make(map[string]struct{})
	for _, t := range labeled {
		entitySet[t.Head] = struct{}{}
		entitySet[t.Tail] = struct{}{}
		relationSet[t.Relation] = struct{}{}
	}

	entityLabels := sortedKeys(entitySet)
	relationLabels := sortedKeys(relationSet)

	entityToID := make(map[string]int64, len(entityLabels))
	for i, label := range entityLabels {
		entityToID[label] = int64(i)
	}
	relationToID := make(map[string]int64, len(relationLabels))
	for i, label := range relationLabels {
		relationToID[label] = int64(i)
	}

	ts := make([]Triple, len(labeled))
	for i, t := range labeled {
		ts[i] = Triple{
			Head:     entityToID[t.Head],
			Relation: relationToID[t.Relation],
			Tail:     entityToID[t.Tail],
		}
	}

	return &Factory{
		triples:        ts,
		numEntities:    int64(len(entityLabels)),
		numRelations:   int64(len(relationLabels)),
		entityToID:     entityToID,
		relationToID:   relationToID,
		entityLabels:   entityLabels,
		relationLabels: relationLabels,
	}
}

// LoadTSV loads labeled triples from a tab-separated file with one
// "head<TAB>relation<TAB>tail" fact per line. Blank lines and lines
// starting with '#' are skipped.
func LoadTSV(path string) (*Factory, error) {
	labeled, err := loadLabeledTSV(path)
	if err != nil {
		return nil, err
	}
	return FromLabeled(labeled), nil
}

// LoadSplits loads several TSV files into factories sharing one entity and
// relation vocabulary built over all files, so triple IDs are comparable
// across splits. Factories are returned in input order.
func LoadSplits(paths ...string) ([]*Factory, error) {
	splits := make([][]LabeledTriple, len(paths))
	var all []LabeledTriple
	for i, path := range paths {
		labeled, err := loadLabeledTSV(path)
		if err != nil {
			return nil, err
		}
		splits[i] = labeled
		all = append(all, labeled...)
	}

	vocab := FromLabeled(all)
	factories := make([]*Factory, len(paths))
	for i, labeled := range splits {
		ts := make([]Triple, len(labeled))
		for j, t := range labeled {
			ts[j] = Triple{
				Head:     vocab.entityToID[t.Head],
				Relation: vocab.relationToID[t.Relation],
				Tail:     vocab.entityToID[t.Tail],
			}
		}
		factories[i] = &Factory{
			triples:        ts,
			numEntities:    vocab.numEntities,
			numRelations:   vocab.numRelations,
			entityToID:     vocab.entityToID,
			relationToID:   vocab.relationToID,
			entityLabels:   vocab.entityLabels,
			relationLabels: vocab.relationLabels,
		}
	}
	return factories, nil
}

func loadLabeledTSV(path string) ([]LabeledTriple, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "opening triples file", err)
	}
	defer f.Close()

	var labeled []LabeledTriple
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			return nil, errors.ValidationError(fmt.Sprintf(
				"%s:%d: expected 3 tab-separated fields, got %d", path, lineNo, len(fields)))
		}
		labeled = append(labeled, LabeledTriple{Head: fields[0], Relation: fields[1], Tail: fields[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(errors.CodeValidation, "reading triples file", err)
	}

	return labeled, nil
}

// Triples returns the ID-mapped triples.
func (f *Factory) Triples() []Triple {
	return f.triples
}

// NumTriples returns the number of triples.
func (f *Factory) NumTriples() int {
	return len(f.triples)
}

// NumEntities returns the entity vocabulary size.
func (f *Factory) NumEntities() int64 {
	return f.numEntities
}

// NumRelations returns the relation vocabulary size.
func (f *Factory) NumRelations() int64 {
	return f.numRelations
}

// EntityID looks up the ID of an entity label.
func (f *Factory) EntityID(label string) (int64, bool) {
	id, ok := f.entityToID[label]
	return id, ok
}

// EntityLabel returns the label of an entity ID, or its decimal form when
// the factory carries no vocabulary.
func (f *Factory) EntityLabel(id int64) string {
	if id >= 0 && id < int64(len(f.entityLabels)) {
		return f.entityLabels[id]
	}
	return fmt.Sprintf("%d", id)
}

// EntityLabels returns the entity vocabulary in ID order, or nil when the
// factory carries no vocabulary.
func (f *Factory) EntityLabels() []string {
	if len(f.entityLabels) == 0 {
		return nil
	}
	labels := make([]string, len(f.entityLabels))
	copy(labels, f.entityLabels)
	return labels
}

// RelationID looks up the ID of a relation label.
func (f *Factory) RelationID(label string) (int64, bool) {
	id, ok := f.relationToID[label]
	return id, ok
}

// RelationLabel returns the label of a relation ID, or its decimal form
// when the factory carries no vocabulary.
func (f *Factory) RelationLabel(id int64) string {
	if id >= 0 && id < int64(len(f.relationLabels)) {
		return f.relationLabels[id]
	}
	return fmt.Sprintf("%d", id)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
