package domain

import "sort"

// Score is one user's aggregated XP inside a snapshot window.
type Score struct {
	UserID string
	Score  int64
}

// RankScores orders scores by (score desc, userID asc) and assigns dense
// 1-based ranks. Non-positive scores are dropped. The input is not modified.
func RankScores(snapshotID string, scores []Score) []LeaderboardRow {
	sorted := make([]Score, 0, len(scores))
	for _, s := range scores {
		if s.Score > 0 {
			sorted = append(sorted, s)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].UserID < sorted[j].UserID
	})

	rows := make([]LeaderboardRow, len(sorted))
	for i, s := range sorted {
		rows[i] = LeaderboardRow{
			SnapshotID: snapshotID,
			UserID:     s.UserID,
			Rank:       i + 1,
			Score:      s.Score,
		}
	}
	return rows
}

// SnapshotStats returns the top score and arithmetic mean of ranked rows,
// both zero when rows is empty.
func SnapshotStats(rows []LeaderboardRow) (top int64, avg float64) {
	if len(rows) == 0 {
		return 0, 0
	}
	var sum int64
	for _, r := range rows {
		sum += r.Score
	}
	return rows[0].Score, float64(sum) / float64(len(rows))
}

// InRankOrder reports whether rows are strictly ordered by
// (score desc, userID asc) with rank equal to position+1.
func InRankOrder(rows []LeaderboardRow) bool {
	for i := range rows {
		if rows[i].Rank != i+1 {
			return false
		}
		if i == 0 {
			continue
		}
		prev, cur := rows[i-1], rows[i]
		if prev.Score < cur.Score || (prev.Score == cur.Score && prev.UserID >= cur.UserID) {
			return false
		}
	}
	return true
}
