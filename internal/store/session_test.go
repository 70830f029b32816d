package store

import (
	"errors"
	"reflect"
	"testing"
)

func TestSessionRepository_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	sess := &Session{Gestures: []string{"swipeLeft", "swipeRight"}}
	if err := repo.Create(sess); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if sess.ID == "" {
		t.Fatal("Create should assign an ID")
	}
	if sess.State != "training" {
		t.Errorf("State = %q, want training", sess.State)
	}

	got, err := repo.GetByID(sess.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !reflect.DeepEqual(got.Gestures, sess.Gestures) {
		t.Errorf("Gestures = %v, want %v", got.Gestures, sess.Gestures)
	}
}

func TestSessionRepository_NotFound(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	if _, err := repo.GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
	if err := repo.UpdateState("missing", "predicting"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateState() error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
	if _, err := repo.Latest("predicting"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest() error = %v, want ErrNotFound", err)
	}
}

func TestSessionRepository_Latest(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()

	first := &Session{Gestures: []string{"wave"}}
	second := &Session{Gestures: []string{"wave", "clap"}}
	third := &Session{Gestures: []string{"nod"}}
	for _, sess := range []*Session{first, second, third} {
		if err := repo.Create(sess); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	repo.UpdateState(first.ID, "predicting")
	repo.UpdateState(second.ID, "predicting")

	got, err := repo.Latest("predicting")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("Latest() = %s, want %s", got.ID, second.ID)
	}
}

func TestSessionRepository_DeleteCascades(t *testing.T) {
	s := newTestStore(t)

	sess := &Session{Gestures: []string{"wave"}}
	if err := s.Sessions().Create(sess); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Examples().Add(sess.ID, 0, []float32{1, 2}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.Events().Create(&EventRecord{SessionID: sess.ID, Event: "wave"}); err != nil {
		t.Fatalf("Create event error = %v", err)
	}

	if err := s.Sessions().Delete(sess.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	n, err := s.Examples().Count(sess.ID)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 0 {
		t.Errorf("examples left after delete: %d", n)
	}
	if c, _ := s.Events().CountByEvent("wave"); c != 0 {
		t.Errorf("events left after delete: %d", c)
	}
}
