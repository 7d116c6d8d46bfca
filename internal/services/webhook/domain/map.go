package domain

import (
	"time"

	perr "nafbridge/internal/platform/errors"
	sync "nafbridge/internal/services/sync/domain"
)

// Disposition says what the ingress should do with a mapped event
type Disposition int

// dispositions
const (
	// DispositionSync enqueues the returned operation
	DispositionSync Disposition = iota
	// DispositionNotify fans out a notification, no sync work
	DispositionNotify
	// DispositionUnknown is warn-and-ignore
	DispositionUnknown
)

// MapEvent translates one platform event into a sync operation.
// The switch is exhaustive over the accepted types, anything else
// comes back as DispositionUnknown
func MapEvent(ev Event, now time.Time) (sync.Operation, Disposition, error) {
	switch ev.EventType {
	case EventTaskStatusChanged:
		key, err := dataString(ev.Data, "taskId")
		if err != nil {
			return sync.Operation{}, DispositionSync, err
		}
		status, _ := ev.Data["newStatus"].(string)
		return sync.NewTaskStatus(key, sync.TaskStatusPayload{
			Status:   status,
			Metadata: dataSubset(ev.Data, "oldStatus", "changes"),
		}, now), DispositionSync, nil

	case EventTaskProgress:
		key, err := dataString(ev.Data, "taskId")
		if err != nil {
			return sync.Operation{}, DispositionSync, err
		}
		return sync.NewTaskStatus(key, sync.TaskStatusPayload{
			Metadata: dataSubset(ev.Data, "progressData"),
		}, now), DispositionSync, nil

	case EventTaskCompleted:
		key, err := dataString(ev.Data, "taskId")
		if err != nil {
			return sync.Operation{}, DispositionSync, err
		}
		return sync.NewTaskStatus(key, sync.TaskStatusPayload{
			Status:   "completed",
			Metadata: dataSubset(ev.Data, "completedBy"),
		}, now), DispositionSync, nil

	case EventAllowlistStatus:
		key, err := dataString(ev.Data, "allowlistId")
		if err != nil {
			return sync.Operation{}, DispositionSync, err
		}
		return sync.NewAllowlistUpdate(key, sync.AllowlistPayload{
			UpdateType: "status_change",
			Changes:    dataSubset(ev.Data, "oldStatus", "newStatus"),
		}, now), DispositionSync, nil

	case EventAllowlistParticipant:
		key, err := dataString(ev.Data, "allowlistId")
		if err != nil {
			return sync.Operation{}, DispositionSync, err
		}
		return sync.NewAllowlistUpdate(key, sync.AllowlistPayload{
			UpdateType: "participant_added",
			Changes:    dataSubset(ev.Data, "participant", "totalParticipants"),
		}, now), DispositionSync, nil

	case EventAllowlistWinner:
		key, err := dataString(ev.Data, "allowlistId")
		if err != nil {
			return sync.Operation{}, DispositionSync, err
		}
		return sync.NewAllowlistUpdate(key, sync.AllowlistPayload{
			UpdateType: "winner_selected",
			Changes:    dataSubset(ev.Data, "winners"),
		}, now), DispositionSync, nil

	case EventUserProgress:
		return userProgressOp(ev, now, "", "progressType", "progressData")

	case EventUserPoints:
		return userProgressOp(ev, now, "points_earned", "pointsEarned", "source", "taskId")

	case EventUserAchievement:
		return userProgressOp(ev, now, "achievement_unlocked", "achievement", "pointsEarned")

	case EventCommunitySettings, EventSystemMaintenance:
		return sync.Operation{}, DispositionNotify, nil

	default:
		return sync.Operation{}, DispositionUnknown, nil
	}
}

func userProgressOp(ev Event, now time.Time, fixedType string, keys ...string) (sync.Operation, Disposition, error) {
	key, err := dataString(ev.Data, "userId")
	if err != nil {
		return sync.Operation{}, DispositionSync, err
	}
	ptype := fixedType
	if ptype == "" {
		ptype, _ = ev.Data["progressType"].(string)
	}
	return sync.NewUserProgress(key, sync.ProgressPayload{
		Events: []sync.ProgressEvent{{
			Type: ptype,
			Data: dataSubset(ev.Data, keys...),
			At:   now,
		}},
	}, now), DispositionSync, nil
}

func dataString(data map[string]any, key string) (string, error) {
	s, _ := data[key].(string)
	if s == "" {
		return "", perr.Validationf("event missing %s", key)
	}
	return s, nil
}

// dataSubset copies the named keys that are present, nil when none are
func dataSubset(data map[string]any, keys ...string) map[string]any {
	var out map[string]any
	for _, k := range keys {
		v, ok := data[k]
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(keys))
		}
		out[k] = v
	}
	return out
}
