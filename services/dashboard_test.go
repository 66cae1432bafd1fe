package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 Bytes", FormatBytes(0))
	assert.Equal(t, "512 Bytes", FormatBytes(512))
	assert.Equal(t, "1 KB", FormatBytes(1024))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.25 MB", FormatBytes(2.25*1024*1024))
}

func TestAverageSize(t *testing.T) {
	assert.Equal(t, "0 KB", AverageSize(nil))
	assert.Equal(t, "1.5 KB", AverageSize([]int64{1024, 2048}))
}

func TestPopularTypes(t *testing.T) {
	got := PopularTypes(map[string]int64{"bar": 4, "pie": 2, "line": 4, "radar": 1}, 3)
	assert.Equal(t, []TypeCount{{"bar", 4}, {"line", 4}, {"pie", 2}}, got)
	assert.Empty(t, PopularTypes(nil, 3))
}

func TestAccountAge(t *testing.T) {
	created := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "10 days", AccountAge(created, created.Add(10*24*time.Hour+time.Hour)))
	assert.Equal(t, "0 days", AccountAge(created, created.Add(time.Hour)))
}

func TestRecentActivity(t *testing.T) {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	at := func(h int) time.Time { return base.Add(time.Duration(h) * time.Hour) }

	files := []Activity{{"file", "a.csv", at(1)}, {"file", "b.csv", at(6)}}
	charts := []Activity{{"chart", "Sales", at(3)}, {"chart", "Costs", at(5)}}
	reports := []Activity{{"report", "Q1", at(4)}, {"report", "Q2", at(2)}}

	got := RecentActivity(5, files, charts, reports)
	assert.Len(t, got, 5)
	names := make([]string, len(got))
	for i, a := range got {
		names[i] = a.Name
	}
	assert.Equal(t, []string{"b.csv", "Costs", "Q1", "Sales", "Q2"}, names)

	assert.Equal(t, []Activity{}, RecentActivity(5))
}
