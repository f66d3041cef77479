package model

import "time"

// Location is a coordinate pair captured on the device.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Task is the server's representation of a task, as it travels over the wire.
// CreatedAt is a unix timestamp in milliseconds.
type Task struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	Location    *Location `json:"location"`
	Photo       *string   `json:"photo"`
	CreatedAt   int64     `json:"createdAt"`
}

// TaskInput carries the user-editable fields of a task (no id).
type TaskInput struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	Location    *Location `json:"location"`
	Photo       *string   `json:"photo"`
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Completed   *bool     `json:"completed,omitempty"`
	Location    *Location `json:"location,omitempty"`
	Photo       *string   `json:"photo,omitempty"`
}

// Input returns the editable fields of t.
func (t Task) Input() TaskInput {
	return TaskInput{
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		Location:    t.Location,
		Photo:       t.Photo,
	}
}

// Patch converts the input into a patch that overwrites every editable field.
func (in TaskInput) Patch() TaskPatch {
	return TaskPatch{
		Title:       &in.Title,
		Description: &in.Description,
		Completed:   &in.Completed,
		Location:    in.Location,
		Photo:       in.Photo,
	}
}

// Apply writes the non-nil fields of p onto t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Location != nil {
		loc := *p.Location
		t.Location = &loc
	}
	if p.Photo != nil {
		photo := *p.Photo
		t.Photo = &photo
	}
}

// NowMillis returns the current time as a unix millisecond timestamp.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// TaskStats summarizes the server-side task list.
type TaskStats struct {
	TotalTasks int `json:"total_tasks"`
	Completed  int `json:"completed"`
	Pending    int `json:"pending"`
}
