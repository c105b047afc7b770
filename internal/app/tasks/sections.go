package tasks

import "github.com/PabloGalante/v2-coach/internal/domain"

// Section is one display block: a horizon with its pending tasks above
// its completed ones.
type Section struct {
	Type      domain.TaskType `json:"type"`
	Pending   []domain.Task   `json:"pending"`
	Completed []domain.Task   `json:"completed"`
}

func (s Section) Total() int {
	return len(s.Pending) + len(s.Completed)
}

// Partition splits tasks into the four horizons in display order,
// keeping insertion order inside each group.
func Partition(tasks []domain.Task) []Section {
	sections := make([]Section, len(domain.TaskTypes))
	pos := make(map[domain.TaskType]int, len(domain.TaskTypes))
	for i, typ := range domain.TaskTypes {
		sections[i] = Section{Type: typ, Pending: []domain.Task{}, Completed: []domain.Task{}}
		pos[typ] = i
	}

	for _, t := range tasks {
		i, ok := pos[t.Type]
		if !ok {
			continue
		}
		if t.Completed {
			sections[i].Completed = append(sections[i].Completed, t)
		} else {
			sections[i].Pending = append(sections[i].Pending, t)
		}
	}
	return sections
}
