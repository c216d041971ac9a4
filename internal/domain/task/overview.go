package task

import (
	"math"
	"sort"
	"time"
)

type Workload struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	TaskCount int    `json:"taskCount"`
}

type Overview struct {
	TotalTasks           int        `json:"totalTasks"`
	CompletedTasks       int        `json:"completedTasks"`
	OverdueTasks         int        `json:"overdueTasks"`
	CompletionPercentage int        `json:"completionPercentage"`
	Workload             []Workload `json:"workloadDistribution"`
}

// Summarize builds the project dashboard numbers from a project's tasks.
// Workload only counts assigned tasks and is sorted by count, busiest first.
func Summarize(tasks []Task, now time.Time) Overview {
	o := Overview{
		TotalTasks: len(tasks),
		Workload:   make([]Workload, 0),
	}

	index := make(map[string]int)

	for _, t := range tasks {
		if t.Status == StatusDone {
			o.CompletedTasks++
		}
		if t.IsOverdue(now) {
			o.OverdueTasks++
		}

		if t.AssigneeID == nil {
			continue
		}

		i, ok := index[*t.AssigneeID]
		if !ok {
			name := ""
			if t.Assignee != nil {
				name = t.Assignee.Name
			}
			o.Workload = append(o.Workload, Workload{UserID: *t.AssigneeID, UserName: name})
			i = len(o.Workload) - 1
			index[*t.AssigneeID] = i
		}
		o.Workload[i].TaskCount++
	}

	if o.TotalTasks > 0 {
		o.CompletionPercentage = int(math.Round(float64(o.CompletedTasks) / float64(o.TotalTasks) * 100))
	}

	sort.SliceStable(o.Workload, func(a, b int) bool {
		return o.Workload[a].TaskCount > o.Workload[b].TaskCount
	})

	return o
}
