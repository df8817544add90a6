package omnifocus

import "time"

type Task struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Note           string     `json:"note,omitempty"`
	Project        string     `json:"project,omitempty"`
	ProjectID      string     `json:"projectId,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Flagged        bool       `json:"flagged"`
	Completed      bool       `json:"completed"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	DeferDate      *time.Time `json:"deferDate,omitempty"`
	CompletionDate *time.Time `json:"completionDate,omitempty"`
	EstimatedMin   int        `json:"estimatedMinutes,omitempty"`
}

type Project struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	Folder         string     `json:"folder,omitempty"`
	Flagged        bool       `json:"flagged"`
	Note           string     `json:"note,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	DeferDate      *time.Time `json:"deferDate,omitempty"`
	CompletionDate *time.Time `json:"completionDate,omitempty"`
	LastReviewDate *time.Time `json:"lastReviewDate,omitempty"`

	// Set only when task counts were requested.
	TaskCount          *int `json:"taskCount,omitempty"`
	AvailableTaskCount *int `json:"availableTaskCount,omitempty"`
}

type Tag struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Parent           string `json:"parent,omitempty"`
	Available        bool   `json:"available"`
	AllowsNextAction bool   `json:"allowsNextAction"`

	// Set only when usage statistics were requested.
	TaskCount          *int `json:"taskCount,omitempty"`
	AvailableTaskCount *int `json:"availableTaskCount,omitempty"`
}

type TagSummary struct {
	TotalTags int `json:"totalTags"`
	Available int `json:"available"`
	Hidden    int `json:"hidden"`
}

type TagList struct {
	Tags    []Tag      `json:"tags"`
	Summary TagSummary `json:"summary"`
}

type ProjectList struct {
	Projects []Project `json:"projects"`
	Total    int       `json:"total"`
}

type TaskList struct {
	Tasks []Task `json:"tasks"`
	Total int    `json:"total"`
}

type Agenda struct {
	Date     string `json:"date"`
	Overdue  []Task `json:"overdue"`
	DueToday []Task `json:"dueToday"`
	Flagged  []Task `json:"flagged,omitempty"`
}

type ProjectStat struct {
	Project   string `json:"project"`
	Completed int    `json:"completed"`
}

type ProductivityStats struct {
	Period         string        `json:"period"`
	Since          time.Time     `json:"since"`
	Completed      int           `json:"completed"`
	Created        int           `json:"created"`
	Overdue        int           `json:"overdue"`
	CompletionRate float64       `json:"completionRate"`
	ByProject      []ProjectStat `json:"byProject,omitempty"`
}

// Written is the reply of every write script.
type Written struct {
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name,omitempty"`
	Changed int      `json:"changed,omitempty"`
	Warning string   `json:"warning,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}
