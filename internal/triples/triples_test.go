package triples

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromLabeled(t *testing.T) {
	f := FromLabeled([]LabeledTriple{
		{"berlin", "located_in", "germany"},
		{"paris", "located_in", "france"},
		{"berlin", "capital_of", "germany"},
	})

	if f.NumEntities() != 4 {
		t.Errorf("NumEntities() = %d, want 4", f.NumEntities())
	}
	if f.NumRelations() != 2 {
		t.Errorf("NumRelations() = %d, want 2", f.NumRelations())
	}
	if f.NumTriples() != 3 {
		t.Errorf("NumTriples() = %d, want 3", f.NumTriples())
	}

	// IDs are assigned in sorted label order.
	id, ok := f.EntityID("berlin")
	if !ok || id != 0 {
		t.Errorf("EntityID(berlin) = %d, %v, want 0, true", id, ok)
	}
	if label := f.EntityLabel(0); label != "berlin" {
		t.Errorf("EntityLabel(0) = %q, want berlin", label)
	}
	if _, ok := f.EntityID("atlantis"); ok {
		t.Error("EntityID(atlantis) should not exist")
	}

	relID, ok := f.RelationID("capital_of")
	if !ok || relID != 0 {
		t.Errorf("RelationID(capital_of) = %d, %v, want 0, true", relID, ok)
	}

	labels := f.EntityLabels()
	if len(labels) != 4 || labels[0] != "berlin" {
		t.Errorf("EntityLabels() = %v, want 4 labels starting with berlin", labels)
	}
}

func TestEntityLabels_NoVocabulary(t *testing.T) {
	f, err := NewFactory([]Triple{{0, 0, 1}}, 2, 1)
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}
	if labels := f.EntityLabels(); labels != nil {
		t.Errorf("EntityLabels() = %v, want nil without a vocabulary", labels)
	}
}

func TestNewFactory_Validation(t *testing.T) {
	tests := []struct {
		name         string
		triple       Triple
		numEntities  int64
		numRelations int64
		wantErr      bool
	}{
		{"valid", Triple{0, 0, 1}, 2, 1, false},
		{"head out of range", Triple{2, 0, 1}, 2, 1, true},
		{"tail out of range", Triple{0, 0, 5}, 2, 1, true},
		{"relation out of range", Triple{0, 1, 1}, 2, 1, true},
		{"negative id", Triple{-1, 0, 0}, 2, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFactory([]Triple{tt.triple}, tt.numEntities, tt.numRelations)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewFactory() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadTSV(t *testing.T) {
	content := "# toy graph\nberlin\tlocated_in\tgermany\n\nparis\tlocated_in\tfrance\n"
	path := filepath.Join(t.TempDir(), "triples.tsv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := LoadTSV(path)
	if err != nil {
		t.Fatalf("LoadTSV() error = %v", err)
	}
	if f.NumTriples() != 2 {
		t.Errorf("NumTriples() = %d, want 2", f.NumTriples())
	}
}

func TestLoadSplits_SharedVocabulary(t *testing.T) {
	dir := t.TempDir()
	trainPath := filepath.Join(dir, "train.tsv")
	testPath := filepath.Join(dir, "test.tsv")

	train := "berlin\tlocated_in\tgermany\nparis\tlocated_in\tfrance\n"
	test := "munich\tlocated_in\tgermany\n"
	if err := os.WriteFile(trainPath, []byte(train), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(testPath, []byte(test), 0o644); err != nil {
		t.Fatal(err)
	}

	factories, err := LoadSplits(trainPath, testPath)
	if err != nil {
		t.Fatalf("LoadSplits() error = %v", err)
	}
	if len(factories) != 2 {
		t.Fatalf("expected 2 factories, got %d", len(factories))
	}

	trainF, testF := factories[0], factories[1]
	if trainF.NumEntities() != testF.NumEntities() {
		t.Errorf("entity counts differ: %d vs %d", trainF.NumEntities(), testF.NumEntities())
	}
	// "germany" appears in both splits and must map to the same ID.
	trainID, ok := trainF.EntityID("germany")
	if !ok {
		t.Fatal("germany missing from train vocabulary")
	}
	testID, ok := testF.EntityID("germany")
	if !ok {
		t.Fatal("germany missing from test vocabulary")
	}
	if trainID != testID {
		t.Errorf("germany maps to %d in train but %d in test", trainID, testID)
	}
	// The shared vocabulary covers entities only seen in one split.
	if _, ok := trainF.EntityID("munich"); !ok {
		t.Error("munich should be in the shared vocabulary")
	}
}

func TestLoadTSV_MalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tsv")
	if err := os.WriteFile(path, []byte("only_two\tfields\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadTSV(path); err == nil {
		t.Error("LoadTSV() with malformed line should fail")
	}
}

func TestPrepareFilterTriples_Idempotence(t *testing.T) {
	eval := []Triple{{0, 0, 1}, {1, 0, 2}}
	train := []Triple{{1, 0, 2}, {2, 0, 0}}

	once := PrepareFilterTriples(eval, train)
	twice := PrepareFilterTriples(eval, train, train)

	if once.Len() != 3 {
		t.Errorf("Len() = %d, want 3", once.Len())
	}
	if once.Len() != twice.Len() {
		t.Errorf("filtering the same triples twice changed the set: %d vs %d", once.Len(), twice.Len())
	}
	for tr := range twice {
		if !once.Contains(tr) {
			t.Errorf("sets differ: %+v missing", tr)
		}
	}
}

func TestFilterSet_Contains(t *testing.T) {
	set := PrepareFilterTriples([]Triple{{0, 0, 1}})

	if !set.Contains(Triple{0, 0, 1}) {
		t.Error("Contains() = false for member triple")
	}
	if set.Contains(Triple{1, 0, 0}) {
		t.Error("Contains() = true for non-member triple")
	}
}
