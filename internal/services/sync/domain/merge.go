package domain

// merge rules used during batch collapse
// TaskStatus: later status wins, metadata shallow-merged
// AllowlistUpdate: mixed update types collapse to batch_update, changes shallow-merged
// UserProgress: events append in enqueue order, never collapsed

// batchUpdateType is the collapsed type for mixed allowlist merges
const batchUpdateType = "batch_update"

// Merge folds later into earlier and returns the combined operation.
// Both operations must share (kind, key); the earlier identity is kept
func Merge(earlier, later Operation) Operation {
	out := earlier
	switch earlier.Kind {
	case KindTaskStatus:
		out.Task = mergeTask(earlier.Task, later.Task)
	case KindAllowlistUpdate:
		out.Allowlist = mergeAllowlist(earlier.Allowlist, later.Allowlist)
	case KindUserProgress:
		out.Progress = mergeProgress(earlier.Progress, later.Progress)
	}
	return out
}

func mergeTask(a, b *TaskStatusPayload) *TaskStatusPayload {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	out := TaskStatusPayload{Status: a.Status}
	if b.Status != "" {
		out.Status = b.Status
	}
	out.Metadata = shallowMerge(a.Metadata, b.Metadata)
	return &out
}

func mergeAllowlist(a, b *AllowlistPayload) *AllowlistPayload {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	out := AllowlistPayload{UpdateType: a.UpdateType}
	if b.UpdateType != "" && b.UpdateType != a.UpdateType {
		out.UpdateType = batchUpdateType
	}
	out.Changes = shallowMerge(a.Changes, b.Changes)
	return &out
}

func mergeProgress(a, b *ProgressPayload) *ProgressPayload {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	events := make([]ProgressEvent, 0, len(a.Events)+len(b.Events))
	events = append(events, a.Events...)
	events = append(events, b.Events...)
	return &ProgressPayload{Events: events}
}

// shallowMerge overlays b onto a one key deep, later wins
func shallowMerge(a, b map[string]any) map[string]any {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Collapse merges a same-key run of operations in order into one
func Collapse(ops []Operation) Operation {
	out := ops[0]
	for _, op := range ops[1:] {
		out = Merge(out, op)
	}
	return out
}
