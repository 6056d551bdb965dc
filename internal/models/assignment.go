package models

import (
	"sort"
	"time"
)

type Assignment struct {
	ID             int64     `json:"id"`
	Kind           FlowKind  `json:"kind"`
	TaskInstanceID int64     `json:"task_instance_id"`
	UserID         int64     `json:"user_id"`
	AssignedBy     *int64    `json:"assigned_by,omitempty"`
	AssignedAt     time.Time `json:"assigned_at"`
}

type AssignmentHistory struct {
	ID              int64      `json:"id"`
	Kind            FlowKind   `json:"kind"`
	TaskInstanceID  int64      `json:"task_instance_id"`
	UserID          int64      `json:"user_id"`
	RemovedBy       int64      `json:"removed_by"`
	RemovedAt       time.Time  `json:"removed_at"`
	StatusAtRemoval TaskStatus `json:"status_at_removal"`
}

// AssignmentChange is one reconciliation to be applied atomically:
// removals (with history), additions, then the assignee_id projection.
type AssignmentChange struct {
	Kind            FlowKind
	TaskInstanceID  int64
	Remove          []int64
	Add             []int64
	ActorID         int64
	StatusAtRemoval TaskStatus
	AssigneeID      *int64
	At              time.Time
}

// DiffAssignees returns current − desired and desired − current, both sorted and without duplicates.
func DiffAssignees(current, desired []int64) (toRemove, toAdd []int64) {
	cur := toSet(current)
	want := toSet(desired)
	for id := range cur {
		if _, ok := want[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	for id := range want {
		if _, ok := cur[id]; !ok {
			toAdd = append(toAdd, id)
		}
	}
	sortIDs(toRemove)
	sortIDs(toAdd)
	return toRemove, toAdd
}

// ProjectAssignee returns the single assigned user, or nil for zero or several.
func ProjectAssignee(userIDs []int64) *int64 {
	set := toSet(userIDs)
	if len(set) != 1 {
		return nil
	}
	for id := range set {
		return &id
	}
	return nil
}

func UniqueIDs(ids []int64) []int64 {
	set := toSet(ids)
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

func AssigneeUserIDs(as []Assignment) []int64 {
	out := make([]int64, 0, len(as))
	for _, a := range as {
		out = append(out, a.UserID)
	}
	return out
}

func SameAssignee(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
