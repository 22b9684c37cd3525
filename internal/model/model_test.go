package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"Session", &Session{}, "sessions"},
		{"Vehicle", &Vehicle{}, "vehicles"},
		{"VehicleSnapshot", &VehicleSnapshot{}, "vehicle_snapshots"},
		{"SimEvent", &SimEvent{}, "sim_events"},
		{"SavedState", &SavedState{}, "saved_states"},
		{"Performance", &Performance{}, "performances"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestDatabaseModels_ListsEveryTable(t *testing.T) {
	assert.Len(t, DatabaseModels, 6)
}
