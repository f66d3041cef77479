package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BuzzLyutic/task-sync/internal/model"
)

var (
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")
)

const taskColumns = `id, title, description, completed, lat, lon, photo, created_at`

// TaskRepo stores tasks in PostgreSQL.
type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{
		pool: pool,
	}
}

func (r *TaskRepo) Create(ctx context.Context, in model.TaskInput) (model.Task, error) {
	lat, lon := splitLocation(in.Location)
	row := r.pool.QueryRow(ctx, `
		INSERT INTO tasks (title, description, completed, lat, lon, photo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+taskColumns,
		in.Title, in.Description, in.Completed, lat, lon, in.Photo, model.NowMillis(),
	)
	t, err := scanTask(row)
	return t, r.mapError(err)
}

func (r *TaskRepo) Get(ctx context.Context, id int64) (model.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrorNotFound
	}
	return t, err
}

func (r *TaskRepo) List(ctx context.Context) ([]model.Task, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Update applies the non-nil fields of patch. A location is only ever
// replaced, never cleared.
func (r *TaskRepo) Update(ctx context.Context, id int64, patch model.TaskPatch) (model.Task, error) {
	lat, lon := splitLocation(patch.Location)
	row := r.pool.QueryRow(ctx, `
		UPDATE tasks
		SET title       = COALESCE($2, title),
		    description = COALESCE($3, description),
		    completed   = COALESCE($4, completed),
		    lat         = COALESCE($5, lat),
		    lon         = COALESCE($6, lon),
		    photo       = COALESCE($7, photo)
		WHERE id = $1
		RETURNING `+taskColumns,
		id, patch.Title, patch.Description, patch.Completed, lat, lon, patch.Photo,
	)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrorNotFound
	}
	return t, r.mapError(err)
}

func (r *TaskRepo) Delete(ctx context.Context, id int64) (bool, error) {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *TaskRepo) SaveIdempotencyKey(ctx context.Context, key string, resourceID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (key, resource_id) VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`, key, resourceID)
	return err
}

func (r *TaskRepo) GetIdempotencyKey(ctx context.Context, key string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		SELECT resource_id FROM idempotency_keys WHERE key = $1
	`, key).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrorNotFound
	}
	return id, err
}

func (r *TaskRepo) GetStats(ctx context.Context) (model.TaskStats, error) {
	var s model.TaskStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE completed)
		FROM tasks
	`).Scan(&s.TotalTasks, &s.Completed)
	s.Pending = s.TotalTasks - s.Completed
	return s, err
}

func scanTask(row pgx.Row) (model.Task, error) {
	var (
		t        model.Task
		lat, lon *float64
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &lat, &lon, &t.Photo, &t.CreatedAt)
	if lat != nil && lon != nil {
		t.Location = &model.Location{Lat: *lat, Lon: *lon}
	}
	return t, err
}

func splitLocation(loc *model.Location) (lat, lon *float64) {
	if loc == nil {
		return nil, nil
	}
	return &loc.Lat, &loc.Lon
}

func (r *TaskRepo) mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return ErrorConflict
		}
	}
	return err
}
