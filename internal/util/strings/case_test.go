package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"Name":       "name",
		"RegionID":   "region_id",
		"HTTPServer": "http_server",
		"ManagerID":  "manager_id",
		"Line2Text":  "line2_text",
		"already_ok": "already_ok",
	}
	for in, want := range tests {
		assert.Equal(t, want, ToSnakeCase(in), in)
	}
}

func TestPluralize(t *testing.T) {
	tests := map[string]string{
		"room":     "rooms",
		"category": "categories",
		"day":      "days",
		"box":      "boxes",
		"address":  "addresses",
		"match":    "matches",
		"":         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Pluralize(in), in)
	}
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "booking_slots", TableName("BookingSlot"))
	assert.Equal(t, "facilities", TableName("Facility"))
}
