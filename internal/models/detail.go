package models

import "sort"

// FlowDetail is the read model of a flow page: ordered stages with their tasks.
type FlowDetail struct {
	Flow   Flow        `json:"flow"`
	Stages []StageView `json:"stages"`
}

type StageView struct {
	Stage       Stage      `json:"stage"`
	Tasks       []TaskView `json:"tasks"`
	IsCompleted bool       `json:"is_completed"`
}

type TaskView struct {
	Task         TemplateTask  `json:"task"`
	Instance     *TaskInstance `json:"instance,omitempty"`
	Assignees    []Assignment  `json:"assignees"`
	CommentCount int           `json:"comment_count"`
}

// Status возвращает pending для задач без экземпляра.
func (v TaskView) Status() TaskStatus {
	if v.Instance == nil {
		return StatusPending
	}
	return v.Instance.Status
}

// StageCompleted is the AND over the stage tasks' status == completed.
func StageCompleted(tasks []TaskView) bool {
	for _, t := range tasks {
		if t.Status() != StatusCompleted {
			return false
		}
	}
	return true
}

// BuildFlowDetail groups template tasks by stage, attaches instance state, and derives stage completion.
func BuildFlowDetail(
	flow Flow,
	stages []Stage,
	tasks []TemplateTask,
	instances []TaskInstance,
	assignments []Assignment,
	commentCounts map[int64]int,
) FlowDetail {
	byTask := make(map[int64]*TaskInstance, len(instances))
	for i := range instances {
		byTask[instances[i].TaskID] = &instances[i]
	}
	byInstance := make(map[int64][]Assignment)
	for _, a := range assignments {
		byInstance[a.TaskInstanceID] = append(byInstance[a.TaskInstanceID], a)
	}
	byStage := make(map[int64][]TemplateTask)
	for _, t := range tasks {
		byStage[t.StageID] = append(byStage[t.StageID], t)
	}

	ordered := append([]Stage(nil), stages...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	detail := FlowDetail{Flow: flow, Stages: make([]StageView, 0, len(ordered))}
	for _, st := range ordered {
		stageTasks := byStage[st.ID]
		sort.SliceStable(stageTasks, func(i, j int) bool { return stageTasks[i].Order < stageTasks[j].Order })

		view := StageView{Stage: st, Tasks: make([]TaskView, 0, len(stageTasks))}
		for _, t := range stageTasks {
			tv := TaskView{Task: t, Assignees: []Assignment{}}
			if inst, ok := byTask[t.ID]; ok {
				tv.Instance = inst
				if as, ok := byInstance[inst.ID]; ok {
					tv.Assignees = as
				}
				tv.CommentCount = commentCounts[inst.ID]
			}
			view.Tasks = append(view.Tasks, tv)
		}
		view.IsCompleted = StageCompleted(view.Tasks)
		detail.Stages = append(detail.Stages, view)
	}
	return detail
}
