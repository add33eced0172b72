package service

import (
	"sort"
	"time"

	"loops-server/internal/model"
)

// WireSubtask is the client-facing shape of a checklist item. Ordering is
// positional: the index in the list, not a field, carries the sequence.
type WireSubtask struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// WireLoop is the client-facing shape of a loop, with camelCase field
// names. The same shape serves sync requests and all responses; the
// timestamps are server-assigned and only populated on the way out.
type WireLoop struct {
	ID         string        `json:"id"`
	Tier       string        `json:"tier"`
	Type       string        `json:"type"`
	Recurrence *string       `json:"recurrence"`
	Status     string        `json:"status"`
	Title      string        `json:"title"`
	Color      string        `json:"color"`
	Period     string        `json:"period"`
	LinkedTo   *string       `json:"linkedTo"`
	RolledFrom *string       `json:"rolledFrom"`
	Subtasks   []WireSubtask `json:"subtasks"`
	CreatedAt  *time.Time    `json:"created_at,omitempty"`
	UpdatedAt  *time.Time    `json:"updated_at,omitempty"`
}

// applyWire copies every client-mutable field from the wire form onto the
// stored form. ClientID, OwnerID, timestamps and subtasks are handled by
// the caller.
func applyWire(loop *model.Loop, wire WireLoop) {
	loop.Tier = wire.Tier
	loop.Type = wire.Type
	loop.Recurrence = derefOrEmpty(wire.Recurrence)
	loop.Status = wire.Status
	loop.Title = wire.Title
	loop.Color = wire.Color
	loop.Period = wire.Period
	loop.LinkedTo = derefOrEmpty(wire.LinkedTo)
	loop.RolledFrom = derefOrEmpty(wire.RolledFrom)
}

// storedSubtasks converts a wire subtask list into rows, with the list
// position materialized as the order value.
func storedSubtasks(wire []WireSubtask) []model.Subtask {
	subtasks := make([]model.Subtask, len(wire))
	for i, s := range wire {
		subtasks[i] = model.Subtask{
			ClientID: s.ID,
			Text:     s.Text,
			Done:     s.Done,
			Order:    i,
		}
	}
	return subtasks
}

// toWire converts a stored loop to the wire form. Subtasks come back
// sorted by ascending order value, with ties keeping their stored relative
// order; this is the ordering guarantee clients depend on.
func toWire(loop model.Loop) WireLoop {
	subtasks := make([]model.Subtask, len(loop.Subtasks))
	copy(subtasks, loop.Subtasks)
	sort.SliceStable(subtasks, func(i, j int) bool {
		return subtasks[i].Order < subtasks[j].Order
	})

	wireSubs := make([]WireSubtask, len(subtasks))
	for i, s := range subtasks {
		wireSubs[i] = WireSubtask{ID: s.ClientID, Text: s.Text, Done: s.Done}
	}

	createdAt := loop.CreatedAt
	updatedAt := loop.UpdatedAt
	return WireLoop{
		ID:         loop.ClientID,
		Tier:       loop.Tier,
		Type:       loop.Type,
		Recurrence: emptyToNil(loop.Recurrence),
		Status:     loop.Status,
		Title:      loop.Title,
		Color:      loop.Color,
		Period:     loop.Period,
		LinkedTo:   emptyToNil(loop.LinkedTo),
		RolledFrom: emptyToNil(loop.RolledFrom),
		Subtasks:   wireSubs,
		CreatedAt:  &createdAt,
		UpdatedAt:  &updatedAt,
	}
}

func toWireList(loops []model.Loop) []WireLoop {
	out := make([]WireLoop, len(loops))
	for i, loop := range loops {
		out[i] = toWire(loop)
	}
	return out
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func emptyToNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
