package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chepyr/go-task-share/internal/models"
	"github.com/google/uuid"
)

func newTask(t *testing.T, owner uuid.UUID, title string) *models.Task {
	t.Helper()
	task, err := models.NewTask(owner, title, "desc")
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	return task
}

func createTask(t *testing.T, repo *TaskRepository, owner uuid.UUID, title string) *models.Task {
	t.Helper()
	task := newTask(t, owner, title)
	if err := repo.Create(context.Background(), task); err != nil {
		t.Fatalf("TaskRepository.Create(%q): %v", title, err)
	}
	return task
}

func collect(t *testing.T, repo *TaskRepository, viewer uuid.UUID) []*models.Task {
	t.Helper()
	var list []*models.Task
	for task, err := range repo.FindAllVisibleTo(context.Background(), viewer) {
		if err != nil {
			t.Fatalf("FindAllVisibleTo: %v", err)
		}
		list = append(list, task)
	}
	return list
}

func TestTaskRepository_Create_Find_Update_Delete(t *testing.T) {
	dbx := setupTestDB(t)
	repo := NewTaskRepository(dbx)
	ctx := context.Background()
	owner := insertUser(t, dbx, "alice")

	deadline := models.NewDate(2026, time.March, 14)
	task := newTask(t, owner.ID, "First task")
	task.Deadline = &deadline
	task.Priority = 3
	task.Category = models.CategoryWork
	task.Reminder = true
	if err := repo.Create(ctx, task); err != nil {
		t.Fatalf("TaskRepository.Create: %v", err)
	}

	got, err := repo.FindByTitle(ctx, owner.ID, "First task")
	if err != nil {
		t.Fatalf("TaskRepository.FindByTitle: %v", err)
	}
	if got.ID != task.ID || got.Description != "desc" || got.Priority != 3 ||
		got.Category != models.CategoryWork || !got.Reminder || got.Completed {
		t.Errorf("FindByTitle mismatch: %#v", got)
	}
	if got.Deadline == nil || !got.Deadline.Equal(deadline) {
		t.Errorf("deadline = %v, want %v", got.Deadline, deadline)
	}
	if len(got.SharedWith) != 0 {
		t.Errorf("expected no shares, got %v", got.SharedWith)
	}

	got.Title = "Updated"
	got.Completed = true
	got.Deadline = nil
	got.Priority = models.PriorityNone
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("TaskRepository.Update: %v", err)
	}
	after, err := repo.FindByTitle(ctx, owner.ID, "Updated")
	if err != nil {
		t.Fatalf("FindByTitle after update: %v", err)
	}
	if !after.Completed || after.Deadline != nil || after.Priority.IsSet() {
		t.Errorf("Update not applied: %#v", after)
	}

	if err := repo.Delete(ctx, after); err != nil {
		t.Fatalf("TaskRepository.Delete: %v", err)
	}
	_, err = repo.FindByTitle(ctx, owner.ID, "Updated")
	var notFound *models.NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected NotFoundError after delete, got %v", err)
	}
}

func TestTaskRepository_Create_DuplicateTitle(t *testing.T) {
	dbx := setupTestDB(t)
	repo := NewTaskRepository(dbx)
	alice := insertUser(t, dbx, "alice")
	bob := insertUser(t, dbx, "bob")

	createTask(t, repo, alice.ID, "Groceries")

	err := repo.Create(context.Background(), newTask(t, alice.ID, "Groceries"))
	var duplicate *models.DuplicateTitleError
	if !errors.As(err, &duplicate) {
		t.Fatalf("expected DuplicateTitleError, got %v", err)
	}

	// titles are unique per owner only
	createTask(t, repo, bob.ID, "Groceries")
}

func TestTaskRepository_Create_Concurrent(t *testing.T) {
	dbx := setupTestDB(t)
	repo := NewTaskRepository(dbx)
	owner := insertUser(t, dbx, "alice")

	const workers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := models.NewTask(owner.ID, "Race", "")
			if err != nil {
				t.Errorf("NewTask: %v", err)
				return
			}
			err = repo.Create(context.Background(), task)
			var duplicate *models.DuplicateTitleError
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.As(err, &duplicate):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 || duplicates != workers-1 {
		t.Errorf("created=%d duplicates=%d, want 1 and %d", created, duplicates, workers-1)
	}
}

func TestTaskRepository_Create_Invalid(t *testing.T) {
	dbx := setupTestDB(t)
	repo := NewTaskRepository(dbx)
	owner := insertUser(t, dbx, "alice")

	task := newTask(t, owner.ID, "Bad priority")
	task.Priority = 11
	err := repo.Create(context.Background(), task)
	var validation *models.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := collect(t, repo, owner.ID); len(got) != 0 {
		t.Errorf("invalid task was stored: %v", got)
	}
}

func TestTaskRepository_FindByTitle_PrefersOwned(t *testing.T) {
	dbx := setupTestDB(t)
	repo := NewTaskRepository(dbx)
	ctx := context.Background()
	alice := insertUser(t, dbx, "alice")
	bob := insertUser(t, dbx, "bob")
	carol := insertUser(t, dbx, "carol")

	fromBob := createTask(t, repo, bob.ID, "Report")
	fromCarol := createTask(t, repo, carol.ID, "Report")
	if err := repo.AddShare(ctx, fromCarol.ID, alice.ID); err != nil {
		t.Fatalf("AddShare: %v", err)
	}
	if err := repo.AddShare(ctx, fromBob.ID, alice.ID); err != nil {
		t.Fatalf("AddShare: %v", err)
	}

	// earliest-created shared task wins while alice owns none
	got, err := repo.FindByTitle(ctx, alice.ID, "Report")
	if err != nil {
		t.Fatalf("FindByTitle: %v", err)
	}
	if got.ID != fromBob.ID {
		t.Errorf("expected bob's task, got owner %v", got.OwnerID)
	}
	if !got.IsSharedWith(alice.ID) {
		t.Errorf("expected SharedWith to contain alice, got %v", got.SharedWith)
	}

	own := createTask(t, repo, alice.ID, "Report")
	got, err = repo.FindByTitle(ctx, alice.ID, "Report")
	if err != nil {
		t.Fatalf("FindByTitle: %v", err)
	}
	if got.ID != own.ID {
		t.Errorf("expected alice's own task, got owner %v", got.OwnerID)
	}
}

func TestTaskRepository_FindByTitle_NotVisible(t *testing.T) {
	dbx := setupTestDB(t)
	repo := NewTaskRepository(dbx)
	alice := insertUser(t, dbx, "alice")
	bob := insertUser(t, dbx, "bob")
	createTask(t, repo, alice.ID, "Private")

	_, err := repo.FindByTitle(context.Background(), bob.ID, "Private")
	var notFound *models.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestTaskRepository_FindAllVisibleTo(t *testing.T) {
	dbx := setupTestDB(t)
	repo := NewTaskRepository(dbx)
	ctx := context.Background()
	alice := insertUser(t, dbx, "alice")
	bob := insertUser(t, dbx, "bob")

	// more than one page so the keyset paging is exercised
	var want []uuid.UUID
	for i := range visiblePageSize + 5 {
		owner := alice.ID
		if i%3 == 0 {
			owner = bob.ID
		}
		task := createTask(t, repo, owner, fmt.Sprintf("task %03d", i))
		if owner == bob.ID && i%2 == 0 {
			if err := repo.AddShare(ctx, task.ID, alice.ID); err != nil {
				t.Fatalf("AddShare: %v", err)
			}
		}
		if owner == alice.ID || i%2 == 0 {
			want = append(want, task.ID)
		}
	}

	for pass := range 2 {
		got := collect(t, repo, alice.ID)
		if len(got) != len(want) {
			t.Fatalf("pass %d: got %d tasks, want %d", pass, len(got), len(want))
		}
		for i := range want {
			if got[i].ID != want[i] {
				t.Fatalf("pass %d: task %d = %v, want %v", pass, i, got[i].ID, want[i])
			}
		}
	}

	// stopping early must not leave a cursor open on the single connection
	for range repo.FindAllVisibleTo(ctx, alice.ID) {
		break
	}
	if _, err := repo.FindByTitle(ctx, alice.ID, "task 001"); err != nil {
		t.Fatalf("FindByTitle after early break: %v", err)
	}
}

func TestTaskRepository_FindAllVisibleTo_Empty(t *testing.T) {
	dbx := setupTestDB(t)
	repo := NewTaskRepository(dbx)
	if got := collect(t, repo, uuid.New()); len(got) != 0 {
		t.Errorf("expected no tasks, got %d", len(got))
	}
}

func TestTaskRepository_AddShare_Idempotent(t *testing.T) {
	dbx := setupTestDB(t)
	repo := NewTaskRepository(dbx)
	ctx := context.Background()
	alice := insertUser(t, dbx, "alice")
	bob := insertUser(t, dbx, "bob")
	task := createTask(t, repo, alice.ID, "Shared")

	for range 2 {
		if err := repo.AddShare(ctx, task.ID, bob.ID); err != nil {
			t.Fatalf("AddShare: %v", err)
		}
	}
	got, err := repo.FindByTitle(ctx, alice.ID, "Shared")
	if err != nil {
		t.Fatalf("FindByTitle: %v", err)
	}
	if len(got.SharedWith) != 1 || got.SharedWith[0] != bob.ID {
		t.Errorf("SharedWith = %v, want [%v]", got.SharedWith, bob.ID)
	}
}

func TestTaskRepository_AddShare_UnknownTask(t *testing.T) {
	dbx := setupTestDB(t)
	repo := NewTaskRepository(dbx)
	err := repo.AddShare(context.Background(), uuid.New(), uuid.New())
	var notFound *models.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestTaskRepository_Delete_RemovesShares(t *testing.T) {
	dbx := setupTestDB(t)
	repo := NewTaskRepository(dbx)
	ctx := context.Background()
	alice := insertUser(t, dbx, "alice")
	bob := insertUser(t, dbx, "bob")
	task := createTask(t, repo, alice.ID, "Shared")
	if err := repo.AddShare(ctx, task.ID, bob.ID); err != nil {
		t.Fatalf("AddShare: %v", err)
	}

	if err := repo.Delete(ctx, task); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var count int
	if err := dbx.QueryRow(`SELECT COUNT(*) FROM task_shares`).Scan(&count); err != nil {
		t.Fatalf("count shares: %v", err)
	}
	if count != 0 {
		t.Errorf("expected shares to be removed, %d left", count)
	}
	if got := collect(t, repo, bob.ID); len(got) != 0 {
		t.Errorf("bob still sees %d tasks", len(got))
	}
}

func TestTaskRepository_Delete_NonExistent(t *testing.T) {
	dbx := setupTestDB(t)
	repo := NewTaskRepository(dbx)

	err := repo.Delete(context.Background(), newTask(t, uuid.New(), "Ghost"))
	var notFound *models.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestTaskRepository_Update_NonExistent(t *testing.T) {
	dbx := setupTestDB(t)
	repo := NewTaskRepository(dbx)

	err := repo.Update(context.Background(), newTask(t, uuid.New(), "Ghost"))
	var notFound *models.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestTaskRepository_Update_DuplicateTitle(t *testing.T) {
	dbx := setupTestDB(t)
	repo := NewTaskRepository(dbx)
	owner := insertUser(t, dbx, "alice")
	createTask(t, repo, owner.ID, "One")
	two := createTask(t, repo, owner.ID, "Two")

	two.Title = "One"
	err := repo.Update(context.Background(), two)
	var duplicate *models.DuplicateTitleError
	if !errors.As(err, &duplicate) {
		t.Fatalf("expected DuplicateTitleError, got %v", err)
	}
}

func TestTaskRepository_ListDueReminders(t *testing.T) {
	dbx := setupTestDB(t)
	repo := NewTaskRepository(dbx)
	ctx := context.Background()
	owner := insertUser(t, dbx, "alice")

	today := models.NewDate(2026, time.May, 10)
	withDeadline := func(title string, deadline models.Date, reminder, completed bool) *models.Task {
		task := newTask(t, owner.ID, title)
		task.Deadline = &deadline
		task.Reminder = reminder
		task.Completed = completed
		if err := repo.Create(ctx, task); err != nil {
			t.Fatalf("Create(%q): %v", title, err)
		}
		return task
	}

	due := withDeadline("due", today, true, false)
	overdue := withDeadline("overdue", today.AddDays(-3), true, false)
	withDeadline("later", today.AddDays(5), true, false)
	withDeadline("no reminder", today, false, false)
	withDeadline("done", today, true, true)
	createTask(t, repo, owner.ID, "no deadline")

	reminded := withDeadline("already reminded", today, true, false)
	reminded.RemindedOn = reminded.Deadline
	if err := repo.Update(ctx, reminded); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := repo.ListDueReminders(ctx, today.AddDays(1))
	if err != nil {
		t.Fatalf("ListDueReminders: %v", err)
	}
	if len(got) != 2 || got[0].ID != due.ID || got[1].ID != overdue.ID {
		t.Fatalf("unexpected due tasks: %v", titles(got))
	}

	// moving the deadline re-arms the reminder
	moved := today.AddDays(1)
	reminded.Deadline = &moved
	if err := repo.Update(ctx, reminded); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = repo.ListDueReminders(ctx, today.AddDays(1))
	if err != nil {
		t.Fatalf("ListDueReminders: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 due tasks after moving the deadline, got %v", titles(got))
	}
}

func TestTaskRepository_MarkReminded(t *testing.T) {
	dbx := setupTestDB(t)
	repo := NewTaskRepository(dbx)
	ctx := context.Background()
	owner := insertUser(t, dbx, "alice")

	deadline := models.NewDate(2026, time.May, 10)
	task := newTask(t, owner.ID, "Pay rent")
	task.Deadline = &deadline
	task.Reminder = true
	if err := repo.Create(ctx, task); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// an edit committed after the reminder query must survive
	edited := *task
	edited.Description = "edited by owner"
	if err := repo.Update(ctx, &edited); err != nil {
		t.Fatalf("Update: %v", err)
	}

	recorded, err := repo.MarkReminded(ctx, task.ID, deadline)
	if err != nil || !recorded {
		t.Fatalf("MarkReminded = %v, %v; want true", recorded, err)
	}
	got, err := repo.FindByTitle(ctx, owner.ID, "Pay rent")
	if err != nil {
		t.Fatalf("FindByTitle: %v", err)
	}
	if got.Description != "edited by owner" {
		t.Errorf("description = %q, edit was overwritten", got.Description)
	}
	if got.RemindedOn == nil || !got.RemindedOn.Equal(deadline) {
		t.Errorf("RemindedOn = %v, want %v", got.RemindedOn, deadline)
	}

	// a moved deadline is not marked with the old one
	moved := deadline.AddDays(30)
	got.Deadline = &moved
	got.RemindedOn = nil
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	recorded, err = repo.MarkReminded(ctx, task.ID, deadline)
	if err != nil {
		t.Fatalf("MarkReminded: %v", err)
	}
	if recorded {
		t.Error("MarkReminded recorded a stale deadline")
	}
	due, err := repo.ListDueReminders(ctx, moved)
	if err != nil {
		t.Fatalf("ListDueReminders: %v", err)
	}
	if len(due) != 1 || due[0].ID != task.ID {
		t.Errorf("expected the moved task to be due again, got %v", titles(due))
	}
}

func titles(list []*models.Task) []string {
	out := make([]string, 0, len(list))
	for _, task := range list {
		out = append(out, task.Title)
	}
	return out
}
