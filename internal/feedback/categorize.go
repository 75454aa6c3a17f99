package feedback

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Categories buckets ratings: 4-5 positive, 3 neutral, 1-2 negative.
type Categories struct {
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// Categorize counts items per rating bucket. Out-of-range ratings are skipped.
func Categorize(items []Item) Categories {
	var out Categories
	for _, item := range items {
		switch {
		case item.Rating >= 4 && item.Rating <= 5:
			out.Positive++
		case item.Rating == 3:
			out.Neutral++
		case item.Rating >= 1 && item.Rating <= 2:
			out.Negative++
		}
	}
	return out
}

// issueKeywords maps an issue label to comment fragments that indicate it.
// Order breaks ties in CommonIssues.
var issueKeywords = []struct {
	issue     string
	fragments []string
}{
	{issue: "recognition", fragments: []string{"recogni", "hear", "heard", "mishear"}},
	{issue: "response time", fragments: []string{"response time", "slow", "lag", "delay"}},
	{issue: "accuracy", fragments: []string{"accura", "wrong", "incorrect", "mistake"}},
	{issue: "understanding", fragments: []string{"understand", "confus"}},
	{issue: "wake word", fragments: []string{"wake word", "hey nexa", "trigger"}},
	{issue: "navigation", fragments: []string{"navigat", "wrong page"}},
}

// CommonIssues returns the issue labels mentioned in comments, most frequent first.
func CommonIssues(items []Item) []string {
	counts := make(map[string]int, len(issueKeywords))
	for _, item := range items {
		comment := strings.ToLower(item.Comment)
		if comment == "" {
			continue
		}
		for _, kw := range issueKeywords {
			for _, fragment := range kw.fragments {
				if strings.Contains(comment, fragment) {
					counts[kw.issue]++
					break
				}
			}
		}
	}

	issues := make([]string, 0, len(counts))
	for _, kw := range issueKeywords {
		if counts[kw.issue] > 0 {
			issues = append(issues, kw.issue)
		}
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return counts[issues[i]] > counts[issues[j]]
	})
	return issues
}

const week = 7 * 24 * time.Hour

// Trends compares the last seven days of feedback with the seven before.
type Trends struct {
	ThisWeek int `json:"thisWeek"`
	LastWeek int `json:"lastWeek"`
	// Change is the percent change, rounded to one decimal. Zero when last week was empty.
	Change float64 `json:"change"`
}

// WeeklyTrends buckets items by Timestamp relative to now.
func WeeklyTrends(items []Item, now time.Time) Trends {
	oneWeekAgo := now.Add(-week).UnixMilli()
	twoWeeksAgo := now.Add(-2 * week).UnixMilli()

	var out Trends
	for _, item := range items {
		switch {
		case item.Timestamp >= oneWeekAgo:
			out.ThisWeek++
		case item.Timestamp >= twoWeeksAgo:
			out.LastWeek++
		}
	}
	if out.LastWeek > 0 {
		change := float64(out.ThisWeek-out.LastWeek) / float64(out.LastWeek) * 100
		out.Change = math.Round(change*10) / 10
	}
	return out
}

// AreaCount is one expected action and how often users asked for it.
type AreaCount struct {
	Area  string `json:"area"`
	Count int    `json:"count"`
}

const improvementAreaLimit = 5

// ImprovementAreas ranks the actions users expected when a command fell short.
func ImprovementAreas(items []Item) []AreaCount {
	counts := make(map[string]int)
	for _, item := range items {
		if area := strings.TrimSpace(item.ExpectedAction); area != "" {
			counts[area]++
		}
	}

	areas := make([]AreaCount, 0, len(counts))
	for area, count := range counts {
		areas = append(areas, AreaCount{Area: area, Count: count})
	}
	sort.Slice(areas, func(i, j int) bool {
		if areas[i].Count != areas[j].Count {
			return areas[i].Count > areas[j].Count
		}
		return areas[i].Area < areas[j].Area
	})
	if len(areas) > improvementAreaLimit {
		areas = areas[:improvementAreaLimit]
	}
	return areas
}
