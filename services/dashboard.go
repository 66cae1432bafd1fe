package services

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// FormatBytes renders a size with 1024-based units and at most two decimals.
func FormatBytes(n float64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	sizes := []string{"Bytes", "KB", "MB", "GB"}
	i := int(math.Floor(math.Log(n) / math.Log(1024)))
	i = max(0, min(i, len(sizes)-1))
	v := math.Round(n/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizes[i]
}

// AverageSize is the mean of sizes, or "0 KB" when there are none.
func AverageSize(sizes []int64) string {
	if len(sizes) == 0 {
		return "0 KB"
	}
	var total int64
	for _, s := range sizes {
		total += s
	}
	return FormatBytes(float64(total) / float64(len(sizes)))
}

type TypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// PopularTypes returns the n most frequent types, ties broken by name.
func PopularTypes(counts map[string]int64, n int) []TypeCount {
	out := make([]TypeCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, TypeCount{Type: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func AccountAge(createdAt, now time.Time) string {
	if createdAt.IsZero() {
		return "0 days"
	}
	days := int(now.Sub(createdAt).Hours() / 24)
	return fmt.Sprintf("%d days", max(days, 0))
}

type Activity struct {
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecentActivity merges activity lists and keeps the n newest.
func RecentActivity(n int, lists ...[]Activity) []Activity {
	var all []Activity
	for _, l := range lists {
		all = append(all, l...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if len(all) > n {
		all = all[:n]
	}
	if all == nil {
		all = []Activity{}
	}
	return all
}
