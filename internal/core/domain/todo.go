package domain

import "time"

type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Todo is a to-do record as stored on chain.
type Todo struct {
	ID          uint64    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	Priority    Priority  `json:"priority"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CreateTodoInput struct {
	Title       string
	Description string
	Priority    Priority
}

// UpdateTodoInput carries the fields to change; nil fields keep their value.
type UpdateTodoInput struct {
	Title       *string
	Description *string
	Completed   *bool
	Priority    *Priority
}

// Apply returns a copy of t with the non-nil fields of in applied.
func (t Todo) Apply(in UpdateTodoInput) Todo {
	if in.Title != nil {
		t.Title = *in.Title
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Completed != nil {
		t.Completed = *in.Completed
	}
	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	return t
}
