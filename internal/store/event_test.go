package store

import "testing"

func TestEventRepository(t *testing.T) {
	s := newTestStore(t)

	sess := &Session{Gestures: []string{"wave"}}
	if err := s.Sessions().Create(sess); err != nil {
		t.Fatalf("Create session error = %v", err)
	}

	repo := s.Events()
	records := []*EventRecord{
		{SessionID: sess.ID, Event: "doneTraining", Label: -1},
		{SessionID: sess.ID, Event: "wave", Label: 0, Confidence: 100},
		{Event: "wave", Label: 0, Confidence: 90},
	}
	for _, r := range records {
		if err := repo.Create(r); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if r.ID == 0 || r.CreatedAt.IsZero() {
			t.Errorf("Create should set ID and CreatedAt: %+v", r)
		}
	}

	recent, err := repo.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Recent(2) returned %d records", len(recent))
	}
	if recent[0].SessionID != "" || recent[0].Confidence != 90 {
		t.Errorf("newest record = %+v", recent[0])
	}
	if recent[1].SessionID != sess.ID || recent[1].Event != "wave" {
		t.Errorf("second record = %+v", recent[1])
	}

	n, err := repo.CountByEvent("wave")
	if err != nil {
		t.Fatalf("CountByEvent() error = %v", err)
	}
	if n != 2 {
		t.Errorf("CountByEvent(wave) = %d, want 2", n)
	}
}
