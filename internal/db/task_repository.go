package db

import (
	"context"
	"database/sql"
	"errors"
	"iter"

	"github.com/chepyr/go-task-share/internal/models"
	"github.com/google/uuid"
)

// number of rows fetched per round trip by FindAllVisibleTo
const visiblePageSize = 50

const taskColumns = `t.seq, t.id, t.owner_id, t.title, t.description, t.deadline, t.priority,
 t.category, t.completed, t.reminder, t.reminded_on, t.created_at, t.updated_at`

// defines methods for task db operations
type TaskRepositoryInterface interface {
	Create(ctx context.Context, task *models.Task) error
	FindByTitle(ctx context.Context, viewerID uuid.UUID, title string) (*models.Task, error)
	FindAllVisibleTo(ctx context.Context, viewerID uuid.UUID) iter.Seq2[*models.Task, error]
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, task *models.Task) error
	AddShare(ctx context.Context, taskID, userID uuid.UUID) error
	ListDueReminders(ctx context.Context, through models.Date) ([]*models.Task, error)
	MarkReminded(ctx context.Context, taskID uuid.UUID, deadline models.Date) (bool, error)
}

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts task. The title check and the insert run in one
// transaction, and the (owner_id, title) constraint rejects a racing insert.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	return withTx(ctx, r.db, "create task", func(tx *sql.Tx) error {
		var exists bool
		query := `SELECT EXISTS(SELECT 1 FROM tasks WHERE owner_id = $1 AND title = $2)`
		if err := tx.QueryRowContext(ctx, query, task.OwnerID, task.Title).Scan(&exists); err != nil {
			return repoErr("create task", err)
		}
		if exists {
			return &models.DuplicateTitleError{Title: task.Title}
		}

		query = `INSERT INTO tasks (id, owner_id, title, description, deadline, priority, category,
		 completed, reminder, reminded_on, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
		_, err := tx.ExecContext(ctx, query,
			task.ID, task.OwnerID, task.Title, task.Description, task.Deadline,
			nullPriority(task.Priority), string(task.Category), task.Completed, task.Reminder,
			task.RemindedOn, task.CreatedAt, task.UpdatedAt)
		if isUniqueViolation(err) {
			return &models.DuplicateTitleError{Title: task.Title}
		}
		if err != nil {
			return repoErr("create task", err)
		}

		for _, userID := range task.SharedWith {
			if err := addShare(ctx, tx, task.ID, userID); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByTitle returns the viewer's own task with title, or else the
// earliest-created task with that title shared with the viewer.
func (r *TaskRepository) FindByTitle(ctx context.Context, viewerID uuid.UUID, title string) (*models.Task, error) {
	owned := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.owner_id = $1 AND t.title = $2`
	task, _, err := scanTask(r.db.QueryRowContext(ctx, owned, viewerID, title))
	if errors.Is(err, sql.ErrNoRows) {
		shared := `SELECT ` + taskColumns + ` FROM tasks t
		 JOIN task_shares s ON s.task_id = t.id
		 WHERE s.user_id = $1 AND t.title = $2
		 ORDER BY t.seq LIMIT 1`
		task, _, err = scanTask(r.db.QueryRowContext(ctx, shared, viewerID, title))
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Kind: "task", Key: title}
	}
	if err != nil {
		return nil, repoErr("find task", err)
	}
	if task.SharedWith, err = loadShares(ctx, r.db, task.ID); err != nil {
		return nil, err
	}
	return task, nil
}

// FindAllVisibleTo yields the tasks owned by or shared with viewerID in
// creation order. Rows are read a page at a time and no cursor stays open
// while the caller handles a task. Iterating again restarts from the
// beginning.
func (r *TaskRepository) FindAllVisibleTo(ctx context.Context, viewerID uuid.UUID) iter.Seq2[*models.Task, error] {
	query := `SELECT ` + taskColumns + ` FROM tasks t
	 WHERE (t.owner_id = $1
	   OR EXISTS (SELECT 1 FROM task_shares s WHERE s.task_id = t.id AND s.user_id = $1))
	   AND t.seq > $2
	 ORDER BY t.seq LIMIT $3`

	return func(yield func(*models.Task, error) bool) {
		var after int64
		for {
			page, last, err := r.queryTasks(ctx, query, viewerID, after, visiblePageSize)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, task := range page {
				if !yield(task, nil) {
					return
				}
			}
			if len(page) < visiblePageSize {
				return
			}
			after = last
		}
	}
}

// Update persists the mutable fields of task. The owner is never changed.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	query := `UPDATE tasks SET title = $1, description = $2, deadline = $3, priority = $4,
	 category = $5, completed = $6, reminder = $7, reminded_on = $8, updated_at = $9
	 WHERE id = $10`
	result, err := r.db.ExecContext(ctx, query,
		task.Title, task.Description, task.Deadline, nullPriority(task.Priority),
		string(task.Category), task.Completed, task.Reminder, task.RemindedOn, task.UpdatedAt,
		task.ID)
	if isUniqueViolation(err) {
		return &models.DuplicateTitleError{Title: task.Title}
	}
	if err != nil {
		return repoErr("update task", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return repoErr("update task", err)
	}
	if affected == 0 {
		return &models.NotFoundError{Kind: "task", Key: task.Title}
	}
	return nil
}

// Delete removes task and every share of it.
func (r *TaskRepository) Delete(ctx context.Context, task *models.Task) error {
	return withTx(ctx, r.db, "delete task", func(tx *sql.Tx) error {
		// check if exists
		var exists bool
		query := `SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1)`
		if err := tx.QueryRowContext(ctx, query, task.ID).Scan(&exists); err != nil {
			return repoErr("delete task", err)
		}
		if !exists {
			return &models.NotFoundError{Kind: "task", Key: task.Title}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM task_shares WHERE task_id = $1`, task.ID); err != nil {
			return repoErr("delete task", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, task.ID); err != nil {
			return repoErr("delete task", err)
		}
		return nil
	})
}

// AddShare grants userID visibility of taskID. Granting twice is a no-op.
func (r *TaskRepository) AddShare(ctx context.Context, taskID, userID uuid.UUID) error {
	return withTx(ctx, r.db, "share task", func(tx *sql.Tx) error {
		var exists bool
		query := `SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1)`
		if err := tx.QueryRowContext(ctx, query, taskID).Scan(&exists); err != nil {
			return repoErr("share task", err)
		}
		if !exists {
			return &models.NotFoundError{Kind: "task", Key: taskID.String()}
		}
		return addShare(ctx, tx, taskID, userID)
	})
}

// ListDueReminders returns pending tasks with a reminder whose deadline is
// on or before through and that have not been reminded for that deadline.
func (r *TaskRepository) ListDueReminders(ctx context.Context, through models.Date) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t
	 WHERE t.reminder = $1 AND t.completed = $2
	   AND t.deadline IS NOT NULL AND t.deadline <= $3
	   AND (t.reminded_on IS NULL OR t.reminded_on <> t.deadline)
	 ORDER BY t.seq`
	tasks, _, err := r.queryTasks(ctx, query, true, false, through)
	return tasks, err
}

// MarkReminded records that the reminder for deadline went out. Only
// reminded_on is written, and only while the task still has that deadline;
// it reports false when the task was deleted or its deadline moved.
func (r *TaskRepository) MarkReminded(ctx context.Context, taskID uuid.UUID, deadline models.Date) (bool, error) {
	query := `UPDATE tasks SET reminded_on = $1 WHERE id = $2 AND deadline = $1`
	result, err := r.db.ExecContext(ctx, query, deadline, taskID)
	if err != nil {
		return false, repoErr("mark reminded", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, repoErr("mark reminded", err)
	}
	return affected > 0, nil
}

func (r *TaskRepository) queryTasks(ctx context.Context, query string, args ...any) ([]*models.Task, int64, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, repoErr("list tasks", err)
	}
	defer rows.Close()

	var (
		tasks []*models.Task
		last  int64
	)
	for rows.Next() {
		task, seq, err := scanTask(rows)
		if err != nil {
			return nil, 0, repoErr("list tasks", err)
		}
		tasks = append(tasks, task)
		last = seq
	}
	if err := rows.Err(); err != nil {
		return nil, 0, repoErr("list tasks", err)
	}
	rows.Close()

	for _, task := range tasks {
		if task.SharedWith, err = loadShares(ctx, r.db, task.ID); err != nil {
			return nil, 0, err
		}
	}
	return tasks, last, nil
}

func addShare(ctx context.Context, q querier, taskID, userID uuid.UUID) error {
	query := `INSERT INTO task_shares (task_id, user_id) VALUES ($1, $2)
	 ON CONFLICT (task_id, user_id) DO NOTHING`
	_, err := q.ExecContext(ctx, query, taskID, userID)
	return repoErr("share task", err)
}

func loadShares(ctx context.Context, q querier, taskID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.QueryContext(ctx, `SELECT user_id FROM task_shares WHERE task_id = $1 ORDER BY seq`, taskID)
	if err != nil {
		return nil, repoErr("load shares", err)
	}
	defer rows.Close()

	shared := []uuid.UUID{}
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			return nil, repoErr("load shares", err)
		}
		shared = append(shared, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, repoErr("load shares", err)
	}
	return shared, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, int64, error) {
	var (
		seq        int64
		task       = &models.Task{}
		deadline   dateColumn
		remindedOn dateColumn
		priority   sql.NullInt64
		category   string
	)
	err := row.Scan(
		&seq, &task.ID, &task.OwnerID, &task.Title, &task.Description, &deadline, &priority,
		&category, &task.Completed, &task.Reminder, &remindedOn, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, 0, err
	}
	task.Deadline = deadline.date
	task.RemindedOn = remindedOn.date
	task.Category = models.Category(category)
	if priority.Valid {
		task.Priority = models.Priority(priority.Int64)
	}
	return task, seq, nil
}

func nullPriority(p models.Priority) any {
	if !p.IsSet() {
		return nil
	}
	return int64(p)
}

// dateColumn scans a nullable DATE/TEXT column into a *models.Date.
type dateColumn struct {
	date *models.Date
}

func (c *dateColumn) Scan(src any) error {
	if src == nil {
		c.date = nil
		return nil
	}
	var d models.Date
	if err := d.Scan(src); err != nil {
		return err
	}
	c.date = &d
	return nil
}
