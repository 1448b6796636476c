package handlers

import (
	"encoding/json"

	"github.com/seetohshaokang/HabitEase/internal/api/dto"
	"github.com/seetohshaokang/HabitEase/internal/domain/habits"
)

// Habits
func HabitToResponse(h *habits.Habit) *dto.HabitResponse {
	if h == nil {
		return nil
	}
	return &dto.HabitResponse{
		ID:               h.ID,
		UserID:           h.UserID,
		Name:             h.Name,
		Logo:             h.Logo,
		Unit:             h.Unit,
		Streak:           h.Streak,
		LastCompletedDay: h.LastCompletedDay,
		CreatedAt:        h.CreatedAt,
		UpdatedAt:        h.UpdatedAt,
	}
}

func HabitLogToResponse(l *habits.HabitLog) *dto.HabitLogResponse {
	if l == nil {
		return nil
	}
	return &dto.HabitLogResponse{
		ID:        l.ID,
		HabitID:   l.HabitID,
		Timestamp: l.Timestamp,
		Value:     l.Value,
	}
}

func CompletionToResponse(r *habits.CompletionResult) *dto.CompletionResponse {
	if r == nil {
		return nil
	}
	return &dto.CompletionResponse{
		Log:        *HabitLogToResponse(&r.Log),
		Streak:     r.UpdatedStreak,
		FirstOfDay: r.FirstOfDay,
	}
}

// Activity trail
func HabitActivityToResponse(a *habits.HabitActivity) dto.HabitActivityResponse {
	resp := dto.HabitActivityResponse{
		ID:        a.ID,
		HabitID:   a.HabitID,
		Action:    a.Action,
		Timestamp: a.Timestamp,
	}
	if len(a.Metadata) > 0 {
		var metadata map[string]interface{}
		if err := json.Unmarshal(a.Metadata, &metadata); err == nil {
			resp.Metadata = metadata
		}
	}
	return resp
}
