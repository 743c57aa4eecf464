package store

import (
	"context"
	"errors"
	"testing"
)

func newNoteFixture(t *testing.T) (context.Context, *NoteStore, uint) {
	t.Helper()
	db := newTestDB(t)
	userID := newTestUser(t, db, "jiwoo")
	courses := NewCourseStore(db)
	ctx := context.Background()
	if _, err := courses.Create(ctx, userID, "운영체제", mustDate(t, "2026-03-02")); err != nil {
		t.Fatalf("create course: %v", err)
	}
	return ctx, NewNoteStore(db), userID
}

func TestSaveNoteOverwrites(t *testing.T) {
	ctx, notes, userID := newNoteFixture(t)

	if err := notes.Save(ctx, userID, "운영체제", "2주차", "첫 번째 필기"); err != nil {
		t.Fatalf("save note: %v", err)
	}
	if err := notes.Save(ctx, userID, "운영체제", "2주차", "두 번째 필기"); err != nil {
		t.Fatalf("overwrite note: %v", err)
	}

	body, err := notes.Load(ctx, userID, "운영체제", "2주차")
	if err != nil {
		t.Fatalf("load note: %v", err)
	}
	if body != "두 번째 필기" {
		t.Errorf("note body = %q, want last write", body)
	}
}

func TestLoadNoteAbsentIsNotFound(t *testing.T) {
	ctx, notes, userID := newNoteFixture(t)

	if _, err := notes.Load(ctx, userID, "운영체제", "5주차"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("load absent note = %v, want ErrNotFound", err)
	}
}

func TestEmptyNoteIsDistinctFromAbsent(t *testing.T) {
	ctx, notes, userID := newNoteFixture(t)

	if err := notes.Save(ctx, userID, "운영체제", "5주차", ""); err != nil {
		t.Fatalf("save empty note: %v", err)
	}

	body, err := notes.Load(ctx, userID, "운영체제", "5주차")
	if err != nil {
		t.Fatalf("load empty note: %v", err)
	}
	if body != "" {
		t.Errorf("note body = %q, want empty string", body)
	}
}

func TestSaveNoteUnknownCourse(t *testing.T) {
	ctx, notes, userID := newNoteFixture(t)

	if err := notes.Save(ctx, userID, "없는과목", "1주차", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("save to unknown course = %v, want ErrNotFound", err)
	}
}

func TestLoadAllNotes(t *testing.T) {
	ctx, notes, userID := newNoteFixture(t)

	if err := notes.Save(ctx, userID, "운영체제", "1주차", "프로세스"); err != nil {
		t.Fatalf("save note: %v", err)
	}
	if err := notes.Save(ctx, userID, "운영체제", "3주차", "스레드"); err != nil {
		t.Fatalf("save note: %v", err)
	}

	all, err := notes.LoadAll(ctx, userID)
	if err != nil {
		t.Fatalf("load all notes: %v", err)
	}
	weeks, ok := all["운영체제"]
	if !ok {
		t.Fatal("course missing from note mapping")
	}
	if len(weeks) != 2 {
		t.Fatalf("got %d notes, want 2", len(weeks))
	}
	if weeks["1주차"] != "프로세스" || weeks["3주차"] != "스레드" {
		t.Errorf("unexpected note mapping: %v", weeks)
	}
}
